// Package authn resolves the Bearer access token of a request to a user.
package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"account_service/internal/auth"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ctxKey struct{}

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

func New(log *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, r)

				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			user, err := authenticator.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					unauthorized(w, r)

					return
				}

				log.Error("failed to authenticate request", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("internal error"))

				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
		})
	}
}

// User returns the user stored by the middleware.
func User(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)

	return u, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")

	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, resp.Error("unauthorized"))
}

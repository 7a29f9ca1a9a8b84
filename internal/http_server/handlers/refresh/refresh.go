package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/auth"
	"account_service/internal/http_server/cookie"
	"account_service/internal/http_server/handlers/login"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

func New(
	log *slog.Logger,
	refresher Refresher,
	cookies cookie.Settings,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := cookie.Refresh(r)
		if token == "" {
			log.Info("refresh cookie is missing")

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("invalid or expired token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, err := refresher.Refresh(ctx, token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidOrExpiredToken) {
				cookie.ClearRefresh(w, cookies)

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid or expired token"))

				return
			}

			log.Error("failed to refresh tokens", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		log.Info("tokens refreshed")

		login.ResponseOK(w, r, pair, cookies)
	}
}

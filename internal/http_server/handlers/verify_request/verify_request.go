package verifyRequest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/http_server/middleware/authn"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

type VerificationRequester interface {
	RequestVerification(ctx context.Context, user models.User) error
}

// New sends a fresh verification link to the authenticated user. Already
// verified users get the same acknowledgement without a link.
func New(
	log *slog.Logger,
	requester VerificationRequester,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyRequest.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := authn.User(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("unauthorized"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := requester.RequestVerification(ctx, user); err != nil {
			log.Error("failed to send verification link", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		ResponseOK(w, r)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
	})
}

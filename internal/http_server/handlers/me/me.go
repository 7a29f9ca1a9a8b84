package me

import (
	"log/slog"
	"net/http"

	"account_service/internal/http_server/middleware/authn"
	resp "account_service/internal/lib/api/response"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	models.User
}

// New returns the user resolved by the authn middleware.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

		user, ok := authn.User(r.Context())
		if !ok {
			log.Error("handler mounted without authn middleware",
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("unauthorized"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     user,
		})
	}
}

package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/auth"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	models.User
}

type Registrar interface {
	Register(ctx context.Context, email, name, password string) (models.User, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	registrar Registrar,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := registrar.Register(ctx, req.Email, req.Name, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrEmailTaken) {
				log.Info("email already taken")

				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("email already registered"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		log.Info("User registered", slog.Int64("uid", user.ID))

		ResponseOK(w, r, user)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, user models.User) {
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, Response{
		Response: resp.OK(),
		User:     user,
	})
}

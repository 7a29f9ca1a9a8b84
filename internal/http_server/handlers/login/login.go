package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/auth"
	"account_service/internal/http_server/cookie"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger/sl"
	"account_service/internal/models"

	"github.com/ajg/form"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// Request is an OAuth2 password-grant style form; username carries the email.
type Request struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

type Response struct {
	resp.Response
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (models.TokenPair, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authenticator Authenticator,
	cookies cookie.Settings,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		dec := form.NewDecoder(r.Body)
		dec.IgnoreUnknownKeys(true)

		if err := dec.Decode(&req); err != nil {
			log.Error("Failed to decode request form", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, err := authenticator.Login(ctx, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				w.Header().Set("WWW-Authenticate", "Bearer")

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid credentials"))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		log.Info("User logged in successfully")

		ResponseOK(w, r, pair, cookies)
	}
}

// ResponseOK writes the access token to the body and the refresh token to
// its cookie. Shared with the refresh handler.
func ResponseOK(w http.ResponseWriter, r *http.Request, pair models.TokenPair, cookies cookie.Settings) {
	cookie.SetRefresh(w, pair.RefreshToken, cookies)

	render.JSON(w, r, Response{
		Response:    resp.OK(),
		AccessToken: pair.AccessToken,
		TokenType:   pair.TokenType,
	})
}

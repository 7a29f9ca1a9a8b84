package logout

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/http_server/cookie"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

type Logouter interface {
	Logout(ctx context.Context, refreshToken string) error
}

// New revokes the session of the refresh cookie and deletes the cookie.
// A missing or unknown token is not an error.
func New(
	log *slog.Logger,
	logouter Logouter,
	cookies cookie.Settings,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		cookie.ClearRefresh(w, cookies)

		if err := logouter.Logout(ctx, cookie.Refresh(r)); err != nil {
			log.Error("failed to logout user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		log.Info("user logged out successfully")

		ResponseOK(w, r)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
	})
}

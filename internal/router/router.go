package router

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"livepoll-backend/internal/handlers"
	"livepoll-backend/internal/middleware"
)

type Options struct {
	FrontendURL string
	// StaticDir, when set, serves a built frontend with index.html fallback.
	StaticDir string
}

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	chatHandler *handlers.ChatHandler,
	pollHandler *handlers.PollHandler,
	wsHandler *handlers.WSHandler,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(opts.FrontendURL))

	authLimiter := middleware.NewRateLimiter(10, time.Minute)
	chatLimiter := middleware.NewRateLimiter(30, 10*time.Second)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/teacher", authHandler.TeacherToken)
		})

		// ──── Sessions ────
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Post("/participants", sessionHandler.AddParticipant)
			r.Post("/answers", pollHandler.SubmitAnswer)
			r.With(chatLimiter.Middleware).Post("/messages", chatHandler.PostMessage)

			// Teacher only
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.RequireTeacher)
				r.Post("/polls", pollHandler.Create)
				r.Post("/kick", sessionHandler.Kick)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHandler.Subscribe)
	})

	if opts.StaticDir != "" {
		r.NotFound(spaHandler(opts.StaticDir))
	}

	return r
}

// spaHandler serves files from dir and falls back to index.html for client
// side routes. API paths keep their 404.
func spaHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	}
}

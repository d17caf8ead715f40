// Package health serves the liveness page polled by hosting platforms.
package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const OnlineText = "Bot is Online!"

// NewRouter returns the liveness handler: GET / answers OnlineText.
func NewRouter() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(OnlineText))
	})
	return router
}

type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(port int, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: logger,
	}
}

// Start listens in the background. A listener failure is logged; the bot
// keeps running without the liveness page.
func (s *Server) Start() {
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
		err := s.srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return errors.Wrap(s.srv.Shutdown(ctx), "unable to shutdown http server")
}

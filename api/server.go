// Package api exposes an engine over HTTP.
//
// Transactions are submitted as JSON envelopes; accounts can be read raw or
// decoded as polls, voter receipts and tallies.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/blockberries/pollberry/engine"
)

// Server serves the HTTP API for one engine
type Server struct {
	engine *engine.Engine
	log    *logrus.Entry
	srv    *http.Server
}

// NewServer creates a server for eng. A nil logger uses the standard logger.
func NewServer(eng *engine.Engine, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		engine: eng,
		log:    logger.WithField("module", "api"),
	}
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/status", s.StatusHandler)
	r.Post("/tx", s.SubmitHandler)
	r.Get("/accounts/{address}", s.AccountHandler)

	r.Get("/polls/{name}", s.PollHandler)
	r.Get("/polls/{name}/voters/{voter}", s.VoterHandler)
	r.Get("/tallies/{label}", s.TallyHandler)

	r.Route("/derive", func(r chi.Router) {
		r.Get("/poll/{name}", s.DerivePollHandler)
		r.Get("/poll/{name}/voters/{voter}", s.DeriveVoterHandler)
		r.Get("/tally/{label}", s.DeriveTallyHandler)
	})

	return r
}

// ListenAndServe serves on addr until Shutdown is called
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("HTTP server listening")

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("handled request")
	})
}

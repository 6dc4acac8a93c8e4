// Package httpapi serves chat and retrieval over JSON HTTP.
package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
	"ragchat/internal/usecase"
)

const requestTimeout = 3 * time.Minute

// Chatter answers one turn of a session.
type Chatter interface {
	Ask(ctx context.Context, sessionID, question string, onFragment func(string)) (*usecase.ChatResult, error)
}

// Retriever returns passages for a query; k == 0 means the default.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.Passage, error)
}

type SessionReader interface {
	Get(id string) (domain.Session, error)
}

type Deps struct {
	Chat     Chatter
	Retrieve Retriever
	Sessions SessionReader
	// Health reports index details for /health. Optional.
	Health func() fiber.Map
}

type Server struct {
	app    *fiber.App
	deps   Deps
	logger *log.Logger
}

func NewServer(deps Deps, l *log.Logger) *Server {
	if l == nil {
		l = logger.Discard()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:      "ragchat",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: requestTimeout,
		}),
		deps:   deps,
		logger: l,
	}

	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.register()
	return s
}

func (s *Server) register() {
	api := s.app.Group("/api/v1")
	api.Get("/health", s.health)
	api.Post("/query", s.query)
	api.Get("/sessions/:id", s.getSession)
	api.Post("/sessions/:id/messages", s.postMessage)
}

func (s *Server) App() *fiber.App { return s.app }

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()
	s.logger.Info("http api listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	}
}

func (s *Server) logRequests(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return err
}

// statusFor maps domain errors onto HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrSessionRestore):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable, "unable to answer right now: model backend unavailable"
	case errors.Is(err, domain.ErrEmbedding):
		return fiber.StatusBadGateway, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "request timed out"
	default:
		return fiber.StatusInternalServerError, "internal error"
	}
}

func (s *Server) fail(c fiber.Ctx, err error) error {
	status, msg := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "err", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// Package server exposes the engine over HTTP and websocket using fiber.
// Handlers stay thin: decode, call the service, map errors to stable codes.
package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/tablemates/backend/internal/auth"
	"github.com/tablemates/backend/internal/ledger"
	"github.com/tablemates/backend/internal/middleware"
	"github.com/tablemates/backend/internal/notify"
	"github.com/tablemates/backend/internal/orders"
	"github.com/tablemates/backend/internal/otp"
	"github.com/tablemates/backend/internal/session"
	"github.com/tablemates/backend/internal/storage"
)

// Config carries the server's collaborators.
type Config struct {
	Orders *orders.Service
	Auth   auth.Authenticator
	JWT    *auth.JWTManager
	Hub    *notify.Hub
	Logger *slog.Logger
	// EchoCodes returns issued OTP codes in the response. Dev only.
	EchoCodes bool
}

type Server struct {
	app       *fiber.App
	orders    *orders.Service
	auth      auth.Authenticator
	jwt       *auth.JWTManager
	hub       *notify.Hub
	logger    *slog.Logger
	echoCodes bool
}

func New(cfg Config) *Server {
	s := &Server{
		orders:    cfg.Orders,
		auth:      cfg.Auth,
		jwt:       cfg.JWT,
		hub:       cfg.Hub,
		logger:    cfg.Logger,
		echoCodes: cfg.EchoCodes,
	}

	s.app = fiber.New(fiber.Config{
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	s.app.Use(middleware.RequestLogger())
	s.app.Use(middleware.Metrics())

	s.routes()
	return s
}

// Listen serves the API on addr, blocking until shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests and stops the listeners.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api/v1")

	api.Post("/auth/register", s.handleRegister)
	api.Post("/auth/login", s.handleLogin)

	ordersAPI := api.Group("/orders", middleware.RequireAuth(s.jwt))
	ordersAPI.Post("/", s.handleCreateOrder)
	ordersAPI.Get("/:id", s.handleGetOrder)
	ordersAPI.Get("/:id/ledger", s.handleGetLedger)
	ordersAPI.Post("/:id/otp", s.handleIssueCode)
	ordersAPI.Post("/:id/pay", s.handlePay)
	ordersAPI.Post("/:id/cancel", s.handleCancelOrder)
	ordersAPI.Post("/:id/participants/cancel", s.handleCancelParticipant)
	ordersAPI.Post("/:id/delivered", s.handleConfirmDelivery)
	ordersAPI.Post("/:id/session/join", s.handleJoinSession)
	ordersAPI.Post("/:id/session/leave", s.handleLeaveSession)
	ordersAPI.Post("/:id/session/end", s.handleEndSession)

	s.wsRoutes()
}

// apiError is the JSON error envelope with a stable machine-readable code.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorHandler maps domain errors onto stable codes. Anything unmapped is a
// 500 "internal" with the detail kept out of the response body.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "error"
		if fe.Code == fiber.StatusUnauthorized {
			code = "unauthorized"
		}
		return c.Status(fe.Code).JSON(apiError{Error: code, Message: fe.Message})
	}

	status, code := classify(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.Path(), "error", err)
		msg = "internal error"
	}

	return c.Status(status).JSON(apiError{Error: code, Message: msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidOrder):
		return fiber.StatusBadRequest, "invalid_order"
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, storage.ErrAlreadyPaid):
		return fiber.StatusConflict, "already_paid"
	case errors.Is(err, orders.ErrOrderImmutable):
		return fiber.StatusConflict, "order_immutable"
	case errors.Is(err, orders.ErrInvalidTransition), errors.Is(err, storage.ErrStateConflict):
		return fiber.StatusConflict, "invalid_transition"
	case errors.Is(err, session.ErrNoSession):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrSessionEnded):
		return fiber.StatusConflict, "session_ended"
	case errors.Is(err, otp.ErrNoActiveChallenge):
		return fiber.StatusBadRequest, "no_active_challenge"
	case errors.Is(err, otp.ErrChallengeExpired):
		return fiber.StatusBadRequest, "challenge_expired"
	case errors.Is(err, otp.ErrCodeMismatch):
		return fiber.StatusBadRequest, "code_mismatch"
	case errors.Is(err, auth.ErrEmailExists):
		return fiber.StatusConflict, "email_exists"
	case errors.Is(err, auth.ErrWeakPassword):
		return fiber.StatusBadRequest, "weak_password"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "invalid_credentials"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

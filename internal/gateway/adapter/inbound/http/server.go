package http_handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/anthanhphan/go-distributed-cache/internal/cache/domain"
	"github.com/anthanhphan/go-distributed-cache/internal/gateway/config"
	"github.com/anthanhphan/go-distributed-cache/internal/gateway/port"
	sdklogger "github.com/anthanhphan/gosdk/logger"
)

type Server struct {
	app     *fiber.App
	cfg     *config.Config
	service port.KeyService
}

func NewServer(cfg *config.Config, service port.KeyService) *Server {
	app := fiber.New(fiber.Config{
		BodyLimit:             cfg.Server.BodyLimit,
		UnescapePath:          true,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	if cfg.Server.AccessLog {
		app.Use(fiberlogger.New())
	}

	s := &Server{
		app:     app,
		cfg:     cfg,
		service: service,
	}

	// Routes
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/keys/:key", s.handleGet)
	s.app.Put("/keys/:key", s.handleSet)
	s.app.Delete("/keys/:key", s.handleDelete)
	s.app.Get("/cluster/topology", s.handleTopology)
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.cfg.Server.RequestTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), timeout)
}

func (s *Server) sendJSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}

// sendCacheError maps the cache error taxonomy onto HTTP statuses.
func (s *Server) sendCacheError(c *fiber.Ctx, key string, err error) error {
	var timeout *domain.ReplicationTimeoutError
	switch {
	case errors.As(err, &timeout):
		// the write stands on the primary; report its version with the failure
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error":    err.Error(),
			"version":  timeout.Version,
			"acked":    timeout.Acked,
			"required": timeout.Required,
		})
	case errors.Is(err, domain.ErrInvalidKey):
		return s.sendJSONError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCapacityExceeded):
		return s.sendJSONError(c, fiber.StatusInsufficientStorage, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return s.sendJSONError(c, fiber.StatusGatewayTimeout, err.Error())
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrNodeUnavailable):
		sdklogger.Warnw("Cache unavailable", "key", key, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		sdklogger.Errorw("Cache request failed", "key", key, "error", err.Error())
		return s.sendJSONError(c, fiber.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGet(c *fiber.Ctx) error {
	key := c.Params("key")
	ctx, cancel := s.requestContext(c)
	defer cancel()

	value, found, err := s.service.Get(ctx, key)
	if err != nil {
		return s.sendCacheError(c, key, err)
	}
	if !found {
		return s.sendJSONError(c, fiber.StatusNotFound, "key not found")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(value)
}

// handleSet stores the raw request body. The optional ttl query parameter
// is in seconds.
func (s *Server) handleSet(c *fiber.Ctx) error {
	key := c.Params("key")

	var ttl time.Duration
	if raw := c.Query("ttl"); raw != "" {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil || secs < 0 {
			return s.sendJSONError(c, fiber.StatusBadRequest, "ttl must be a non-negative number of seconds")
		}
		ttl = time.Duration(secs * float64(time.Second))
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	// fiber reuses the body buffer after the handler returns
	value := append([]byte(nil), c.Body()...)
	version, err := s.service.Set(ctx, key, value, ttl)
	if err != nil {
		return s.sendCacheError(c, key, err)
	}

	return c.JSON(fiber.Map{
		"key":     key,
		"version": version,
	})
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	key := c.Params("key")
	ctx, cancel := s.requestContext(c)
	defer cancel()

	existed, err := s.service.Delete(ctx, key)
	if err != nil {
		return s.sendCacheError(c, key, err)
	}

	return c.JSON(fiber.Map{
		"key":     key,
		"existed": existed,
	})
}

func (s *Server) handleTopology(c *fiber.Ctx) error {
	return c.JSON(s.service.Topology())
}

package api

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/papercomputeco/graphstack/api/mcp"
	"github.com/papercomputeco/graphstack/pkg/coordinator"
)

// Server is the API server for the object graph.
type Server struct {
	config Config
	co     *coordinator.Coordinator
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server. Every request reads through its own
// derived context of co; writes save through to the store.
func NewServer(config Config, co *coordinator.Coordinator, logger *slog.Logger) (*Server, error) {
	mcpServer, err := mcp.NewServer(mcp.Config{
		Coordinator: co,
		ReadOnly:    config.ReadOnly,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(compress.New())

	s := &Server{
		config: config,
		co:     co,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/model", s.handleGetModel)
	app.Get("/v1/objects/:entity", s.handleListObjects)
	app.Get("/v1/objects/:entity/:key", s.handleGetObject)
	app.Post("/v1/import", s.writable, s.handleImport)
	app.Delete("/v1/objects/:entity/:key", s.writable, s.handleDeleteObject)
	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
		"read_only", s.config.ReadOnly,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) writable(c *fiber.Ctx) error {
	if s.config.ReadOnly {
		return c.Status(fiber.StatusMethodNotAllowed).JSON(ErrorResponse{Error: "server is read-only"})
	}
	return c.Next()
}

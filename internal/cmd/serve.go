package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/spf13/cobra"

	"github.com/resurrectci/resurrectci/internal/config"
	"github.com/resurrectci/resurrectci/internal/handlers"
	"github.com/resurrectci/resurrectci/internal/logger"
	"github.com/resurrectci/resurrectci/internal/middleware"
	"github.com/resurrectci/resurrectci/internal/repository"
	"github.com/resurrectci/resurrectci/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ResurrectCI API server",
	Long: `# resurrectci serve

Starts the HTTP API: terminal sessions, the SSE event feed, per-session
WebSockets, and the repository/pull-request surface.

Configuration comes from ` + "`~/.resurrectci/config.yaml`" + ` and
` + "`RESURRECTCI_*`" + ` environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg := config.Runtime
	logger.Configure(logger.LevelFromEnv(false), false)

	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	events := handlers.NewEventsHandler()
	manager := session.NewManager(session.Options{
		ExecutorURL:    cfg.ExecutorURL,
		SandboxEnabled: cfg.SandboxEnabled,
		SandboxImage:   cfg.SandboxImage,
		WorkspaceDir:   cfg.WorkspaceDir,
		GitHubToken:    cfg.GitHubToken,
		DevServerPorts: cfg.DevServerPorts,
	}, events)

	app := fiber.New(fiber.Config{
		AppName:               "resurrectci",
		DisableStartupMessage: true,
	})
	app.Use(fiberrecover.New())

	auth := middleware.NewAuthMiddleware(cfg.AuthSecret)
	app.Use(auth.RequireAuth)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	sessions := handlers.NewSessionsHandler(manager)
	app.Post("/v1/sessions", sessions.CreateSession)
	app.Get("/v1/sessions", sessions.ListSessions)
	app.Get("/v1/sessions/:owner/:repo", sessions.GetSession)
	app.Delete("/v1/sessions/:owner/:repo", sessions.DeleteSession)
	app.Post("/v1/sessions/:owner/:repo/execute", sessions.Execute)
	app.Post("/v1/sessions/:owner/:repo/interrupt", sessions.Interrupt)
	app.Get("/v1/sessions/:owner/:repo/messages", sessions.GetMessages)
	app.Get("/v1/sessions/:owner/:repo/history", sessions.GetHistory)
	app.Post("/v1/sessions/:owner/:repo/devserver/stop", sessions.StopDevServer)

	ws := handlers.NewWSHandler(manager)
	app.Use("/v1/sessions/:owner/:repo/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/v1/sessions/:owner/:repo/ws", websocket.New(ws.HandleSession))

	files := handlers.NewFilesHandler(repository.NewGitHub(cfg.GitHubToken))
	app.Get("/v1/repos/:owner/:repo/tree", files.GetTree)
	app.Get("/v1/repos/:owner/:repo/file", files.GetFile)
	app.Post("/v1/repos/:owner/:repo/pulls", files.CreatePullRequest)

	app.Get("/v1/events", events.HandleSSE)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("ResurrectCI API listening on %s", cfg.BindAddr)
		errCh <- app.Listen(cfg.BindAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Infof("Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Session teardown first so sandbox containers are removed before the
	// process dies.
	manager.Shutdown(shutdownCtx)
	events.Stop()
	return app.ShutdownWithContext(shutdownCtx)
}

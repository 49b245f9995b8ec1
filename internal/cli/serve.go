package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/handlers"
	"alfredoptarigan/consultant-matcher/internal/services"
	ws "alfredoptarigan/consultant-matcher/internal/websocket"
)

// matchUniqueFor bounds how long a queued run blocks another one for the same job.
const matchUniqueFor = 30 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the matching worker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newComponents(cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	worker, idx, tracker, err := c.worker(ctx, hub)
	if err != nil {
		return err
	}

	resender, err := c.resender()
	if err != nil {
		return err
	}

	srv := asynq.NewServer(c.redisOpt(), asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			cfg.Worker.Queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(services.TaskTypeMatch, worker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer srv.Shutdown()
	log.Info("worker started", zap.Int("concurrency", cfg.Worker.Concurrency), zap.String("queue", cfg.Worker.Queue))

	client := asynq.NewClient(c.redisOpt())
	defer client.Close()

	app := fiber.New(fiber.Config{
		AppName:      "Consultant Matcher API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	handlers.RegisterRoutes(app, handlers.Handlers{
		Job:    handlers.NewJobHandler(c.jobs, services.NewMatchQueue(client, cfg.Worker.Queue, matchUniqueFor), validator.New()),
		Status: handlers.NewStatusHandler(tracker, hub),
		Result: handlers.NewResultHandler(c.matches),
		Index:  handlers.NewIndexHandler(c.profiles, idx),
		Notify: handlers.NewNotifyHandler(c.jobs, c.matches, resender),
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr), zap.String("index_backend", cfg.Index.Backend))

	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

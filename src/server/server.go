package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dialog-processor/src/config"
	"dialog-processor/src/controller"
	"dialog-processor/src/db"
	"dialog-processor/src/fsstore"
	"dialog-processor/src/llm"
	"dialog-processor/src/processor"
	"dialog-processor/src/queue"
	"dialog-processor/src/rabbitmq"
	"dialog-processor/src/repository"
	"dialog-processor/src/router"
	"dialog-processor/src/session"
	"dialog-processor/src/telegram"
	"dialog-processor/src/token"
)

// Server owns every long-lived component: the storage tiers, the session
// sweeper, the task queue and the HTTP listener.
type Server struct {
	config   *config.GlobalConfig
	database *db.DB
	store    *session.Store
	sweeper  *session.Sweeper
	queue    *queue.TaskQueue
	events   rabbitmq.Publisher
	http     *http.Server

	shutdownHandler ShutdownHandlerInterface
}

// NewServer creates a new server instance and wires all components.
func NewServer(cfg *config.GlobalConfig) (*Server, error) {
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := fsstore.EnsureDir(cfg.SessionFileDir); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to prepare session file directory: %w", err)
	}

	var events rabbitmq.Publisher
	if cfg.RabbitURL != "" {
		publisher, err := rabbitmq.NewAMQPPublisher(cfg.RabbitURL)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		events = publisher
	} else {
		slog.Warn("RABBITMQ_URL not set, lifecycle events will be dropped")
		events = rabbitmq.NoopPublisher{}
	}

	codec := token.NewCodec(cfg.JWTSecret)
	sessionRepo := repository.NewSessionRepository(database)
	draftRepo := repository.NewDraftRepository(database)

	store := session.NewStore(codec, sessionRepo, telegram.NewDevFactory(nil),
		cfg.SessionFileDir, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sweeper := session.NewSweeper(store, cfg.SessionCleanupInterval, cfg.PendingSessionMaxAge)

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMModel)
	proc := processor.NewDialogProcessor(store, llmClient, draftRepo, cfg.LLMModel)
	taskQueue := queue.NewTaskQueue(queue.Config{
		MaxConcurrent:    cfg.MaxConcurrentTasks,
		DispatchInterval: cfg.TaskDispatchInterval,
		TaskTimeout:      cfg.TaskTimeout,
		MaxRetries:       cfg.TaskMaxRetries,
	}, proc, events)

	authController := controller.NewAuthController(store, events)
	processingController := controller.NewProcessingController(taskQueue, draftRepo, store)
	r := router.NewRouter(store, authController, processingController)

	server := &Server{
		config:   cfg,
		database: database,
		store:    store,
		sweeper:  sweeper,
		queue:    taskQueue,
		events:   events,
		http: &http.Server{
			Addr:    fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Handler: r,
		},
	}
	server.shutdownHandler = NewShutdownHandler(server)

	return server, nil
}

// Run starts every background component and the HTTP listener, then blocks
// until a shutdown trigger arrives.
func (s *Server) Run() error {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	s.sweeper.Start()
	s.queue.Start()

	serverDone := s.startServerGoroutine()

	return s.shutdownHandler.HandleShutdown(serverDone, osSignals)
}

// startServerGoroutine starts the HTTP server in a goroutine and returns a channel for errors
func (s *Server) startServerGoroutine() chan error {
	serverDone := make(chan error, 1)

	go func() {
		slog.Info("Starting dialog processor",
			"host", s.config.Host,
			"port", s.config.Port)
		serverDone <- s.startServer()
	}()

	return serverDone
}

// startServer starts the HTTP server and handles errors
func (s *Server) startServer() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

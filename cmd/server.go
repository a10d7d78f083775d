package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/miskibin/sejmofil-sub001/internal/auth"
	"github.com/miskibin/sejmofil-sub001/internal/chat"
	"github.com/miskibin/sejmofil-sub001/internal/conversation"
	"github.com/miskibin/sejmofil-sub001/internal/db"
	"github.com/miskibin/sejmofil-sub001/internal/observability"
	"github.com/miskibin/sejmofil-sub001/internal/server"
)

// shutdownTimeout bounds graceful shutdown, including draining the recorder.
const shutdownTimeout = 15 * time.Second

var (
	serverPort      int
	serverAnonymous bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the streaming chat server",
	Long: `Starts the HTTP chat server. POST /api/chat streams answers as Server-Sent
Events and GET /ws/chat serves the same protocol over WebSocket. Requests are
authenticated with API tokens created by "sejmofil token create".`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "port to listen on (overrides server.port)")
	serverCmd.Flags().BoolVar(&serverAnonymous, "anonymous", false, "accept unauthenticated requests as user \"anonymous\" (development only)")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serverPort > 0 {
		cfg.Server.Port = serverPort
	}
	logger := newLogger(cfg)

	ctx := cmd.Context()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	c, err := buildComponents(ctx, cfg, logger, metrics, true)
	if err != nil {
		return err
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	convStore := conversation.NewStore(database)
	recorder := conversation.NewRecorder(convStore,
		conversation.WithQueueSize(cfg.Recorder.QueueSize),
		conversation.WithWriteTimeout(cfg.Recorder.WriteTimeout),
		conversation.WithLogger(logger),
		conversation.WithMetrics(metrics),
	)

	var authn auth.Authenticator = auth.NewTokenStore(database)
	if serverAnonymous {
		logger.Warn().Msg("authentication disabled, all requests run as user anonymous")
		authn = auth.Anonymous("anonymous")
	}

	pipeline := chat.NewPipeline(c.retriever, newAssembler(cfg, logger), c.provider, pipelineConfig(cfg),
		chat.WithRecorder(recorder),
		chat.WithLogger(logger),
		chat.WithMetrics(metrics),
	)

	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowAll:       cfg.Server.AllowAll,
	}, logger, reg)

	chat.RegisterRoutes(srv.Router(), chat.NewHandler(pipeline, chat.HandlerConfig{
		Store:          convStore,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowAll:       cfg.Server.AllowAll,
		Logger:         logger,
		Metrics:        metrics,
	}), authn)

	logger.Info().
		Str("version", Version).
		Int("port", cfg.Server.Port).
		Str("llm", c.provider.Name()).
		Str("model", cfg.LLM.Model).
		Str("index", string(cfg.Index.Backend)).
		Str("database", database.Path()).
		Msg("sejmofil server starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
		if err := recorder.Close(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("recorder did not drain")
		}
		return nil
	})
	return g.Wait()
}

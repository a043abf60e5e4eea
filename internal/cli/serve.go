package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/pdf-analyzer/internal/async"
	"github.com/joseph-ayodele/pdf-analyzer/internal/export"
	"github.com/joseph-ayodele/pdf-analyzer/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analysis API",
	Long: `Serve the upload API, SSE and websocket progress streams, XLSX reports
and the static frontend. A gRPC health service is started as well when
--grpc-health-addr is set.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.Int("port", 3000, "HTTP listen port")
	f.String("upload-dir", "uploads", "directory for uploaded files")
	f.String("static-dir", "public", "directory served at /")
	f.String("grpc-health-addr", "", "listen address for the gRPC health service (disabled when empty)")
	f.Int("workers", 4, "analyses processed concurrently")
	bindFlags(serveCmd, map[string]string{
		"port":             "port",
		"upload_dir":       "upload-dir",
		"static_dir":       "static-dir",
		"grpc_health_addr": "grpc-health-addr",
		"pipeline_workers": "workers",
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := NewRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Server.UploadDir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}

	queue := async.NewProcessorQueue(rt.Processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.Timeout),
	)

	srv := server.New(rt.Registry, queue, rt.Cache, export.NewService(logger), server.Options{
		UploadDir:      cfg.Server.UploadDir,
		StaticDir:      cfg.Server.StaticDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		MaxRules:       cfg.Pipeline.MaxRules,
	}, logger)

	if addr := cfg.Server.GRPCHealthAddr; addr != "" {
		grpcServer, hs, err := server.StartGRPCHealth(addr, logger)
		if err != nil {
			return err
		}
		defer func() {
			hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			grpcServer.GracefulStop()
		}()
	}

	logger.Info("serve.start",
		"port", cfg.Server.Port,
		"ocr_backend", cfg.OCR.Backend,
		"ocr_concurrency", cfg.OCR.Concurrency,
		"llm_provider", cfg.LLM.Provider,
		"cache", rt.Cache.Name(),
	)
	runErr := srv.Run(ctx, fmt.Sprintf(":%d", cfg.Server.Port), cfg.Server.ShutdownTimeout)

	// In-flight analyses finish before the dispatcher and cache go away.
	sctx, cancel := context.WithTimeout(context.Background(), shutdownBudget(cfg.Server.ShutdownTimeout))
	defer cancel()
	queue.Shutdown(sctx)
	stats := rt.Dispatcher.Stats()
	if err := rt.Close(sctx); err != nil {
		logger.Warn("serve.close", "error", err)
	}
	logger.Info("serve.stopped",
		"ocr_completed", stats.Completed,
		"ocr_failed", stats.Failed,
	)
	return runErr
}

func shutdownBudget(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return 3 * d
}

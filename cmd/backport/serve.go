package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/ealebed/gh-backport-command/internal/config"
	"github.com/ealebed/gh-backport-command/internal/ingest/sqs"
	"github.com/ealebed/gh-backport-command/internal/processor"
	"github.com/ealebed/gh-backport-command/internal/webhook"
)

// webhookBacklog is how many accepted deliveries may wait behind the one
// being processed.
const webhookBacklog = 32

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Handle GitHub deliveries from SQS and/or a signed webhook endpoint",
		Long: `serve long-polls SQS_QUEUE_URL when it is set and, when GITHUB_WEBHOOK_SECRET
is set, accepts signed deliveries on POST /webhook. /healthz is always served.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("json")
			if err != nil {
				return err
			}
			if err := cfg.ValidateWorker(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			p := processor.New(cfg, nil)

			// Consumers stop taking deliveries on the signal; the run in
			// progress finishes before serve returns.
			var consumers sync.WaitGroup
			var hook http.Handler
			if len(cfg.WebhookSecret) > 0 {
				receiver := webhook.NewServer(cfg.WebhookSecret, p, webhookBacklog)
				hook = receiver
				consumers.Go(func() {
					if err := receiver.Run(ctx); err != nil && ctx.Err() == nil {
						slog.Error("webhook.worker.exit", "err", err)
						stop()
					}
				})
			}

			if cfg.SQSQueueURL != "" {
				worker, err := newSQSWorker(ctx, cfg, p)
				if err != nil {
					return err
				}
				consumers.Go(func() {
					if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
						slog.Error("sqs.worker.exit", "err", err)
						stop()
					}
				})
			}

			srv := &http.Server{
				Addr:              cfg.ListenPort,
				Handler:           newRouter(hook),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				slog.Info("server.start", "addr", cfg.ListenPort, "webhook", hook != nil, "sqs", cfg.SQSQueueURL != "")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("server.error", "err", err)
					stop()
				}
			}()

			<-ctx.Done()
			slog.Info("shutdown.begin")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("server.shutdown.error", "err", err)
			}
			consumers.Wait()
			slog.Info("shutdown.complete")
			return nil
		},
	}
}

func newSQSWorker(ctx context.Context, cfg *config.Config, h sqs.Handler) (*sqs.Worker, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &sqs.Worker{
		Client:            awssqs.NewFromConfig(awsCfg),
		QueueURL:          cfg.SQSQueueURL,
		MaxMessages:       cfg.SQSMaxMessages,
		WaitTimeSeconds:   cfg.SQSWaitTimeSeconds,
		VisibilityTimeout: cfg.SQSVisibilityTimeout,
		DeleteOn4xx:       cfg.SQSDeleteOn4xx,
		Processor:         h,
	}, nil
}

// newRouter serves /healthz and, when hook is non-nil, POST /webhook.
func newRouter(hook http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if hook != nil {
		r.Method(http.MethodPost, "/webhook", hook)
	}
	return r
}

package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/trogers1052/bwibbu-backfill/internal/api"
	"github.com/trogers1052/bwibbu-backfill/internal/kafka"
	"github.com/trogers1052/bwibbu-backfill/internal/scheduler"
)

func newServeCmd(rc *RootConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the optional cron backfill and the Kafka request consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, rc)
			if err != nil {
				return err
			}
			defer a.Close()
			a.enableEvents()

			svc := a.service()

			if a.cfg.Schedule.Cron != "" {
				sched, err := scheduler.New(ctx, a.cfg.Schedule, svc, a.logger)
				if err != nil {
					return err
				}
				if err := sched.Register(a.cfg.Schedule.Cron); err != nil {
					return err
				}
				sched.Start()
				defer sched.Stop()
			}

			if len(a.cfg.Kafka.Brokers) > 0 && a.cfg.Kafka.RequestsTopic != "" {
				consumer := kafka.NewConsumer(a.cfg.Kafka.Brokers, a.cfg.Kafka.RequestsTopic, a.cfg.Kafka.GroupID, svc, a.logger)
				consumerDone := make(chan struct{})
				go func() {
					defer close(consumerDone)
					if err := consumer.Start(ctx); err != nil {
						a.logger.Error().Err(err).Msg("kafka consumer stopped")
					}
				}()
				// stores close after the in-flight backfill finishes
				defer func() {
					stop()
					<-consumerDone
				}()
			}

			handler := api.NewHandler(svc, a.reader, a.logger)
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr(),
				Handler:           api.SetupRoutes(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().Str("addr", srv.Addr).Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/insightdelivered/transcript-converter/internal/api"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if port == 0 {
				port = e.cfg.Server.Port
			}

			scheduler, err := e.startScheduler(ctx)
			if err != nil {
				return err
			}
			if scheduler != nil {
				defer func() { <-scheduler.Stop().Done() }()
			}

			h := &api.Handler{
				Parser:    e.parser,
				Grades:    e.grades,
				Store:     e.store,
				Cache:     cache.New(e.cfg.Server.CacheTTL, 10*time.Minute),
				Logger:    e.logger,
				StaticDir: e.cfg.Server.StaticDir,
				Version:   version,
			}
			app := h.NewApp(e.cfg.Server.BodyLimit)

			errCh := make(chan error, 1)
			go func() {
				e.logger.Info("server listening", zap.Int("port", port), zap.String("static_dir", e.cfg.Server.StaticDir))
				errCh <- app.Listen(fmt.Sprintf(":%d", port))
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				e.logger.Info("shutting down server")
				return app.ShutdownWithTimeout(10 * time.Second)
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (defaults to server.port)")
	return cmd
}

// startScheduler runs the batch loader on batch.schedule. It returns nil
// when no schedule is configured.
func (e *env) startScheduler(ctx context.Context) (*cron.Cron, error) {
	schedule := e.cfg.Batch.Schedule
	if schedule == "" {
		e.logger.Info("scheduled ingest disabled (batch.schedule not set)")
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		stats, err := e.runner().Run(ctx, e.cfg.Batch.Folder)
		if err != nil {
			e.logger.Error("scheduled ingest failed", zap.Error(err))
			return
		}
		e.logger.Info("scheduled ingest complete",
			zap.String("run_id", stats.RunID.String()),
			zap.Int("processed", stats.Processed),
			zap.Int("failed", stats.Failed),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("invalid batch.schedule %q: %w", schedule, err)
	}

	c.Start()
	e.logger.Info("scheduled ingest enabled", zap.String("cron", schedule), zap.String("folder", e.cfg.Batch.Folder))
	return c, nil
}

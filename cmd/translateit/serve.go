package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/yaml-translator/internal/cache"
	"github.com/MimeLyc/yaml-translator/internal/config"
	"github.com/MimeLyc/yaml-translator/internal/delivery"
	"github.com/MimeLyc/yaml-translator/internal/httpapi"
	"github.com/MimeLyc/yaml-translator/internal/jobs"
	"github.com/MimeLyc/yaml-translator/internal/langindex"
	"github.com/MimeLyc/yaml-translator/internal/notify"
	"github.com/MimeLyc/yaml-translator/internal/session"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type refreshScheduler interface {
	Apply(ctx context.Context, expr string) error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and browser UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	settingsStore, err := config.NewRuntimeSettingsStore(config.RuntimeSettingsFilePath(), cfg.RuntimeSettings())
	if err != nil {
		return err
	}

	st, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	store := cache.NewStore(st.medium)
	remote := newRemoteSource(cfg.Source.BaseURL)
	sess := session.New(newSourceLoader(cfg, remote), store, session.WithSourceLanguage(cfg.Source.Language))
	defer sess.Close()

	dispatcher := delivery.NewDispatcher(newTelegramClient(cfg, cfg.RuntimeSettings()), store)
	queue := jobs.NewQueue(1, st.jobs)
	queue.Start(dispatcher.Execute)
	defer queue.Stop()

	refresher := langindex.NewRefresher(remote, cfg.Source.LangsDir,
		langindex.WithConcurrency(cfg.Refresh.Concurrency))
	if err := refresher.Load(); err != nil {
		log.Warn("Language index unavailable until the next refresh: %v", err)
	}
	if len(refresher.Index().Translated) == 0 {
		go func() {
			if _, err := refresher.Refresh(ctx); err != nil {
				log.Error("Initial language refresh failed: %v", err)
			}
		}()
	}

	cronEngine := cron.New()
	scheduler := langindex.NewScheduler(cronEngine, refresher)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	apply := func(next config.RuntimeSettings) error {
		remote.SetBaseURL(next.SourceBaseURL)
		dispatcher.SetTelegram(newTelegramClient(cfg, next))
		if err := scheduler.Apply(ctx, next.RefreshCron); err != nil {
			return err
		}
		log.Info("Runtime settings applied: source=%s telegram=%t refresh=%q",
			next.SourceBaseURL, dispatcher.Configured(), next.RefreshCron)
		return nil
	}

	srv := httpapi.NewServer(sess, store, queue,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithBasePath(cfg.HTTP.BasePath),
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(apply),
		httpapi.WithDeliveryTarget(dispatcher),
		httpapi.WithNotifier(notify.New(cfg.System.UILocale)),
		httpapi.WithLanguageIndex(refresher, scheduler),
		httpapi.WithPublicConfig(cfg),
		httpapi.WithRegistry(reg),
	)

	return runWithComponents(ctx, cfg, scheduler, cronEngine, srv)
}

func newTelegramClient(cfg *config.Config, settings config.RuntimeSettings) *delivery.TelegramClient {
	return delivery.NewTelegramClient(cfg.Telegram.APIBase, settings.TelegramBotToken, settings.TelegramChatID, cfg.Telegram.Timeout)
}

// runWithComponents schedules refreshes and serves HTTP until ctx ends.
func runWithComponents(ctx context.Context, cfg *config.Config, scheduler refreshScheduler, cronEngine cronRunner, httpSrv httpServer) error {
	if err := scheduler.Apply(ctx, cfg.Refresh.CronExpr); err != nil {
		return err
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s (base path %s)", cfg.HTTP.Addr, config.NormalizeBasePath(cfg.HTTP.BasePath))
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

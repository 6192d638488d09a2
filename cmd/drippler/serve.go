package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/drippler/drippler/events"
	"github.com/drippler/drippler/internal/config"
	"github.com/drippler/drippler/internal/logger"
	"github.com/drippler/drippler/kvstore"
	"github.com/drippler/drippler/lifecycle"
	"github.com/drippler/drippler/session"
	"github.com/drippler/drippler/transport/httpapi"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background process",
	Long: `The serve command connects to Supabase, restores any stored session and
accepts requests from other processes over HTTP until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, config.New())
	},
}

func serve(ctx context.Context, c config.Config) error {
	log := logger.New(c.GetLogLevel(), c.GetLogPretty())
	displayAppname("Drippler")

	store, err := openStore(ctx, c, log)
	if err != nil {
		return err
	}
	defer store.Close()

	bus := events.NewBus(func(err error) {
		log.Warn().Err(err).Msg("broadcast delivery failed")
	})
	mgr := session.New(config.Supabase(c), store,
		session.WithLogger(log),
		session.WithBus(bus),
		session.WithWebappURL(c.GetWebappURL()),
		session.WithCheckInterval(c.GetSessionCheckInterval()),
		session.WithRefreshThreshold(c.GetSessionRefreshThreshold()),
		session.WithRetryPolicy(session.RetryPolicy{
			MaxAttempts: c.GetInitMaxAttempts(),
			Delay:       c.GetInitRetryDelay(),
		}),
	)
	info := lifecycle.DefaultInfo
	info.Version = c.GetExtensionVersion()
	ctl := lifecycle.New(mgr,
		lifecycle.WithLogger(log),
		lifecycle.WithInfo(info),
		lifecycle.WithWebappURL(c.GetWebappURL()),
	)
	defer ctl.Close()

	if firstRun(ctx, store, log) {
		ctl.OnInstall(ctx)
	} else {
		ctl.OnStartup(ctx)
	}

	api := httpapi.New(ctl, httpapi.WithLogger(log), httpapi.WithBus(bus))
	server := &http.Server{
		Addr:              c.GetListenAddr(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server.ListenAndServe: %w", err)
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

// firstRun reports whether the store has never seen this process.
func firstRun(ctx context.Context, store kvstore.Store, log zerolog.Logger) bool {
	values, err := store.Get(ctx, lifecycle.KeyExtensionVersion)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read install state")
		return false
	}
	_, installed := values[lifecycle.KeyExtensionVersion]
	return !installed
}

func openStore(ctx context.Context, c config.EnvConfig, log zerolog.Logger) (kvstore.Store, error) {
	switch kvstore.StoreType(c.GetKVDriver()) {
	case kvstore.StoreTypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", c.GetRedisAddr(), err)
		}
		return kvstore.NewStore(kvstore.StoreTypeRedis,
			kvstore.WithRedisClient(client),
			kvstore.WithPrefix(c.GetRedisPrefix()),
		)
	case kvstore.StoreTypeMemory:
		log.Warn().Msg("using the in-memory store: sessions will not survive a restart, set KV_DRIVER=redis to keep them")
		return kvstore.NewStore(kvstore.StoreTypeMemory)
	default:
		return kvstore.NewStore(kvstore.StoreType(c.GetKVDriver()))
	}
}

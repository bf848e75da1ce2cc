package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/futurelex/lexsync/internal/cache"
	"github.com/futurelex/lexsync/internal/config"
	"github.com/futurelex/lexsync/internal/identity"
	"github.com/futurelex/lexsync/internal/remote"
	"github.com/futurelex/lexsync/internal/remote/surreal"
	"github.com/futurelex/lexsync/internal/session"
	"github.com/futurelex/lexsync/internal/ui"
	"github.com/futurelex/lexsync/internal/vocab"
)

// flushTimeout bounds the sync attempt a command makes before exiting.
const flushTimeout = 10 * time.Second

// app is the per-invocation wiring of config, cache, remote and session.
type app struct {
	cfg     *config.Config
	cache   cache.Cache
	remote  remote.Store
	surreal *surreal.Store
	library *vocab.Library
	session *session.Session
	logger  *log.Logger
}

// loadConfig loads the config file and applies global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if userFlag != "" {
		cfg.UserID = userFlag
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: cfg.NewLogger("lexsync")}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		a.logger.Printf("WARNING: cannot create data dir %s: %v", cfg.DataDir, err)
	}
	a.cache = cache.OpenOrMemory(cfg.CachePath(), cfg.NewLogger("cache"))

	switch cfg.Remote.Backend {
	case config.BackendSurreal:
		store, err := surreal.Open(ctx, surreal.Config{
			URL:       cfg.Remote.URL,
			Namespace: cfg.Remote.Namespace,
			Database:  cfg.Remote.Database,
			Username:  cfg.Remote.Username,
			Password:  cfg.Remote.Password,
		})
		if err != nil {
			_ = a.cache.Close()
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			a.logger.Printf("WARNING: %v", err)
		}
		a.surreal = store
		a.remote = store
	default:
		a.remote = remote.NewMemory(remote.WithListDelay(cfg.Remote.ListDelay))
	}

	a.library, err = loadLibrary(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	var auth identity.Authenticator
	if cfg.UserID != "" {
		auth = identity.Static(cfg.UserID)
	}
	actor := identity.NewResolver(auth, a.cache, cfg.NewLogger("identity")).ResolveActorID(ctx)

	a.session, err = session.New(actor, a.cache, a.remote, a.library, cfg.SessionConfig(cfg.NewLogger("sync")))
	if err != nil {
		a.close()
		return nil, err
	}
	if err := a.session.Start(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func loadLibrary(cfg *config.Config) (*vocab.Library, error) {
	if cfg.Vocab.Path == "" {
		return vocab.NewLibrary(vocab.Default()), nil
	}
	c, err := vocab.Load(cfg.Vocab.Path)
	if err != nil {
		return nil, err
	}
	return vocab.NewLibrary(c), nil
}

// mustOpen opens the app or exits.
func mustOpen(ctx context.Context) *app {
	a, err := openApp(ctx)
	if err != nil {
		exitf("%v", err)
	}
	return a
}

// finish tries to send pending changes before exit. Whatever is not
// acknowledged stays queued in the cache for the next run.
func (a *app) finish() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := a.session.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s changes saved locally, sync pending: %v\n", ui.RenderWarn("⚠"), err)
	}
	a.close()
}

func (a *app) close() {
	if a.session != nil {
		a.session.Close()
	}
	if a.surreal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.surreal.Close(ctx)
		cancel()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

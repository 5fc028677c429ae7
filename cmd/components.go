package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/browser"
	"github.com/xkilldash9x/markasorgu/internal/cache"
	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/engine"
	"github.com/xkilldash9x/markasorgu/internal/protocol"
)

// sessionFactory adapts the browser manager to the engine's SessionFactory.
type sessionFactory struct {
	manager *browser.Manager
}

func (f sessionFactory) NewSession(ctx context.Context) (engine.Session, error) {
	s, err := f.manager.NewSession(ctx)
	if err != nil {
		// Never hand the engine a typed nil.
		return nil, err
	}
	return s, nil
}

// components holds the initialized services.
type components struct {
	Browser *browser.Manager
	Engine  *engine.TaskEngine
	Cache   *cache.SearchCache
	logger  *zap.Logger
}

// initializeComponents launches the browser and opens the session pool. On error,
// everything started so far has already been shut down.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	filter, err := browser.NewResourceFilterFromNames(cfg.Browser.BlockedResources)
	if err != nil {
		return nil, err
	}

	c := &components{logger: logger}
	c.Browser = browser.NewManager(cfg.Browser, filter, logger)
	if err := c.Browser.Start(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", schemas.ErrPoolUnavailable, err)
	}

	runner := protocol.NewRunner(cfg.Protocol, logger)
	c.Engine, err = engine.New(cfg.Engine, sessionFactory{manager: c.Browser}, runner, logger)
	if err != nil {
		c.Shutdown(cfg.Server.ShutdownTimeout)
		return nil, err
	}
	if err := c.Engine.Start(ctx); err != nil {
		c.Shutdown(cfg.Server.ShutdownTimeout)
		return nil, err
	}

	c.Cache = cache.New(cfg.Cache)
	return c, nil
}

// Shutdown stops the pool first so that every session is closed before the browser goes away.
func (c *components) Shutdown(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if c.Engine != nil {
		if err := c.Engine.Stop(ctx); err != nil {
			c.logger.Warn("Error during task engine shutdown", zap.Error(err))
		}
	}
	if c.Browser != nil {
		if err := c.Browser.Stop(ctx); err != nil {
			c.logger.Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}
	c.Cache.Purge()
}

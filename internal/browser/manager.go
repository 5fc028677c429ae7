// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/observability"
)

// defaultLaunchTimeout applies when the configuration leaves the launch timeout unset.
const defaultLaunchTimeout = 30 * time.Second

// ErrNotStarted is returned when sessions are requested before Start or after Stop.
var ErrNotStarted = errors.New("browser manager not started")

// Manager owns the single browser process shared by every session.
type Manager struct {
	cfg    config.BrowserConfig
	filter ResourceFilter
	logger *zap.Logger

	mu sync.Mutex
	// allocatorCtx manages the entire browser process. All session contexts are derived from this.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	// browserCtx is the first tab, kept open so the process outlives individual sessions.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// wg tracks open sessions for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager creates a manager. The browser is not launched until Start.
func NewManager(cfg config.BrowserConfig, filter ResourceFilter, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		filter: filter,
		logger: logger.Named("browser_manager"),
	}
}

// Start launches the browser and verifies it answers a blank navigation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.allocatorCtx != nil {
		return fmt.Errorf("browser manager already started")
	}
	m.logger.Info("Initializing browser allocator...",
		zap.Bool("headless", m.cfg.Headless),
		zap.String("exec_path", m.cfg.ExecPath),
		zap.Int("blocked_resource_types", len(m.filter.Types())))

	// The allocator must outlive the start context, so it hangs off a detached parent.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), buildAllocatorOptions(m.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	timeout := m.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	testCtx, cancelTest := context.WithTimeout(browserCtx, timeout)
	defer cancelTest()
	stop := context.AfterFunc(ctx, cancelTest)
	defer stop()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.allocatorCtx, m.allocatorCancel = allocCtx, allocCancel
	m.browserCtx, m.browserCancel = browserCtx, browserCancel
	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// NewSession opens a new tab in the shared browser and installs the resource filter.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	browserCtx := m.browserCtx
	if browserCtx == nil {
		m.mu.Unlock()
		return nil, ErrNotStarted
	}
	m.wg.Add(1)
	m.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	id := uuid.NewString()
	s := &Session{
		id:      id,
		ctx:     tabCtx,
		cancel:  cancel,
		logger:  observability.ForSession(m.logger, id),
		onClose: m.wg.Done,
	}

	// The first Run creates the target; the filter listener must be attached to the tab context.
	if err := chromedp.Run(tabCtx, m.filter.Action(s.logger)); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("failed to create browser session: %w", err)
	}
	if ctx.Err() != nil {
		_ = s.Close(ctx)
		return nil, ctx.Err()
	}
	s.logger.Debug("Browser session created.")
	return s, nil
}

// Stop waits for open sessions to close, then terminates the browser process.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	allocCtx, allocCancel, browserCancel := m.allocatorCtx, m.allocatorCancel, m.browserCancel
	m.allocatorCtx, m.allocatorCancel = nil, nil
	m.browserCtx, m.browserCancel = nil, nil
	m.mu.Unlock()

	if allocCtx == nil {
		return nil
	}
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to close...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("All sessions have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	browserCancel()
	allocCancel()
	<-allocCtx.Done()
	m.logger.Info("Browser process terminated.")
	return nil
}

// allocatorFlags returns the command line flags for the browser process.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                      cfg.Headless,
		"disable-gpu":                   cfg.Headless,
		"disable-extensions":            true,
		"disable-blink-features":        "AutomationControlled",
		"disable-background-networking": true,
		"mute-audio":                    true,
	}

	// Flags required for running inside containers (e.g., Docker on Linux).
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}

	// Custom arguments from the configuration win over the built-in flags.
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(strings.TrimSpace(parts[0]), "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

// buildAllocatorOptions assembles the allocator options from chromedp's defaults and the configuration.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := allocatorFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

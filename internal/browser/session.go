// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/markasorgu/api/schemas"
)

// inputMarker tags the input chosen by FillInput so SendKeys can address it by selector.
const inputMarker = "data-markasorgu-input"

// closeTimeout bounds how long Close waits for the tab to go away.
const closeTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is one browser tab. It is driven by a single task at a time.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	closeOnce sync.Once
	onClose   func()
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Navigate loads the URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// HasInput reports whether an input whose placeholder contains substr exists.
func (s *Session) HasInput(ctx context.Context, substr string) (bool, error) {
	var ok bool
	err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(`!!(%s)`, findInputJS(substr)), &ok))
	return ok, err
}

// FillInput clears the matching input and types text into it with key events.
func (s *Session) FillInput(ctx context.Context, substr, text string) error {
	var found bool
	mark := fmt.Sprintf(`(() => {
		document.querySelectorAll('[%[1]s]').forEach(el => el.removeAttribute('%[1]s'));
		const el = %[2]s;
		if (!el) return false;
		el.setAttribute('%[1]s', '1');
		el.focus();
		el.value = '';
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	})()`, inputMarker, findInputJS(substr))

	if err := s.run(ctx, chromedp.Evaluate(mark, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: input with placeholder containing %q", schemas.ErrControlNotFound, substr)
	}
	sel := fmt.Sprintf(`[%s]`, inputMarker)
	return s.run(ctx, chromedp.SendKeys(sel, text, chromedp.ByQuery, chromedp.NodeVisible))
}

// HasButton reports whether a button whose text contains substr exists.
func (s *Session) HasButton(ctx context.Context, substr string) (bool, error) {
	var ok bool
	err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(`!!(%s)`, findButtonJS(substr)), &ok))
	return ok, err
}

// ClickButton clicks the first button whose text contains substr.
func (s *Session) ClickButton(ctx context.Context, substr string) error {
	var clicked bool
	script := fmt.Sprintf(`(() => {
		const btn = %s;
		if (!btn) return false;
		btn.click();
		return true;
	})()`, findButtonJS(substr))

	if err := s.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: button labelled %q", schemas.ErrControlNotFound, substr)
	}
	return nil
}

// ResultsRendered reports whether a table row beyond the header exists.
func (s *Session) ResultsRendered(ctx context.Context) (bool, error) {
	var ok bool
	err := s.run(ctx, chromedp.Evaluate(`document.querySelectorAll('tr').length > 1`, &ok))
	return ok, err
}

// HTML returns a snapshot of the rendered document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Alive reports whether the tab is still usable.
func (s *Session) Alive() bool {
	return s.ctx.Err() == nil
}

// Close cancels the tab context. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		select {
		case <-s.ctx.Done():
		case <-ctx.Done():
		case <-time.After(closeTimeout):
			s.logger.Warn("Timeout waiting for browser tab to close.")
		}
		if s.onClose != nil {
			s.onClose()
		}
		s.logger.Debug("Browser session closed.")
	})
	return nil
}

// run executes actions on the tab, bounded by the caller's deadline and cancellation.
// Cancelling the derived context aborts the actions without closing the tab.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("%w: %v", schemas.ErrSessionBroken, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func findInputJS(substr string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll('input')).find(el => (el.getAttribute('placeholder') || '').includes(%s))`, jsString(substr))
}

func findButtonJS(substr string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll('button')).find(el => (el.textContent || '').includes(%s))`, jsString(substr))
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

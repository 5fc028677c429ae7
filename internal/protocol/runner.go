package protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/markasorgu/api/schemas"
	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/extract"
)

// Runner executes search and detail tasks against a Page.
type Runner struct {
	cfg    config.ProtocolConfig
	logger *zap.Logger
}

// NewRunner creates a Runner for the given protocol settings.
func NewRunner(cfg config.ProtocolConfig, logger *zap.Logger) *Runner {
	return &Runner{cfg: cfg, logger: logger.Named("protocol")}
}

// Run executes the task on page and reports the outcome.
func (r *Runner) Run(ctx context.Context, page Page, task schemas.Task) (schemas.TaskResult, error) {
	result := schemas.TaskResult{TaskID: task.ID, Kind: task.Kind}
	if err := task.Validate(); err != nil {
		return result, err
	}

	start := time.Now()
	var err error
	switch task.Kind {
	case schemas.TaskSearch:
		result.Records, result.Attempts, err = r.Search(ctx, page, *task.Search)
	case schemas.TaskDetail:
		var detail schemas.DetailResult
		detail, result.Attempts, err = r.Detail(ctx, page, *task.Detail)
		if err == nil {
			result.Detail = &detail
		}
	}
	result.Duration = time.Since(start)
	return result, err
}

// Search submits the query and extracts up to q.Limit records from the results table.
func (r *Runner) Search(ctx context.Context, page Page, q schemas.SearchQuery) ([]schemas.BrandRecord, int, error) {
	var records []schemas.BrandRecord
	attempts, err := Retry(ctx, r.cfg.SearchAttempts, func(ctx context.Context, attempt int) error {
		var err error
		records, err = r.searchOnce(ctx, page, q)
		if err != nil {
			r.logAttemptFailure(schemas.TaskSearch, attempt, r.cfg.SearchAttempts, err)
		}
		return err
	})
	if err != nil {
		return nil, attempts, err
	}
	return records, attempts, nil
}

func (r *Runner) searchOnce(ctx context.Context, page Page, q schemas.SearchQuery) ([]schemas.BrandRecord, error) {
	if err := r.submitQuery(ctx, page, q.Text); err != nil {
		return nil, err
	}
	// An empty result set is valid, so a missing table is not a failure.
	if err := Tolerant(ctx, r.cfg.ResultTimeout, r.cfg.PollInterval, page.ResultsRendered); err != nil {
		return nil, classify(err)
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return extract.SearchRecords(html, q.Limit), nil
}

// Detail looks up one application number. A query without a DETAY control
// yields a not-found result, not an error, and is never retried.
func (r *Runner) Detail(ctx context.Context, page Page, q schemas.DetailQuery) (schemas.DetailResult, int, error) {
	var detail schemas.DetailResult
	attempts, err := Retry(ctx, r.cfg.DetailAttempts, func(ctx context.Context, attempt int) error {
		var err error
		detail, err = r.detailOnce(ctx, page, q)
		if err != nil {
			r.logAttemptFailure(schemas.TaskDetail, attempt, r.cfg.DetailAttempts, err)
		}
		return err
	})
	if err != nil {
		return schemas.DetailResult{}, attempts, err
	}
	return detail, attempts, nil
}

func (r *Runner) detailOnce(ctx context.Context, page Page, q schemas.DetailQuery) (schemas.DetailResult, error) {
	if err := r.submitQuery(ctx, page, q.ApplicationNo); err != nil {
		return schemas.DetailResult{}, err
	}

	found, err := Poll(ctx, r.cfg.ResultTimeout, r.cfg.PollInterval, r.hasButton(page, r.cfg.DetailLabel))
	if err != nil {
		return schemas.DetailResult{}, classify(err)
	}
	if !found {
		r.logger.Debug("No detail control rendered, reporting not found.", zap.String("application_no", q.ApplicationNo))
		return schemas.NotFoundDetail(), nil
	}

	if err := r.click(ctx, page, r.cfg.DetailLabel); err != nil {
		return schemas.DetailResult{}, err
	}
	// The detail panel expands without a reliable settled signal.
	if err := Settle(ctx, r.cfg.DetailSettle); err != nil {
		return schemas.DetailResult{}, err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return schemas.DetailResult{}, classify(err)
	}
	return extract.Detail(html), nil
}

// submitQuery runs the steps shared by both task kinds: load the page, wait for the
// query input, type the text and press the submit button.
func (r *Runner) submitQuery(ctx context.Context, page Page, text string) error {
	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	err := page.Navigate(navCtx, r.cfg.TargetURL)
	cancel()
	if err != nil {
		if errors.Is(err, schemas.ErrSessionBroken) || ctx.Err() != nil {
			return classify(err)
		}
		return fmt.Errorf("%w: %s: %v", schemas.ErrNavigationTimeout, r.cfg.TargetURL, err)
	}

	hasInput := func(ctx context.Context) (bool, error) { return page.HasInput(ctx, r.cfg.InputPlaceholder) }
	what := fmt.Sprintf("input with placeholder %q", r.cfg.InputPlaceholder)
	if err := Strict(ctx, r.cfg.ControlTimeout, r.cfg.PollInterval, hasInput, schemas.ErrControlNotFound, what); err != nil {
		return classify(err)
	}

	fillCtx, cancel := context.WithTimeout(ctx, r.cfg.ControlTimeout)
	err = page.FillInput(fillCtx, r.cfg.InputPlaceholder, text)
	cancel()
	if err != nil {
		return classify(err)
	}
	return r.click(ctx, page, r.cfg.SubmitLabel)
}

func (r *Runner) click(ctx context.Context, page Page, label string) error {
	clickCtx, cancel := context.WithTimeout(ctx, r.cfg.ControlTimeout)
	defer cancel()
	if err := page.ClickButton(clickCtx, label); err != nil {
		return classify(err)
	}
	return nil
}

func (r *Runner) hasButton(page Page, label string) Condition {
	return func(ctx context.Context) (bool, error) { return page.HasButton(ctx, label) }
}

func (r *Runner) logAttemptFailure(kind schemas.TaskKind, attempt, of int, err error) {
	fields := []zap.Field{
		zap.String("kind", string(kind)),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", of),
		zap.Error(err),
	}
	if attempt < of && !errors.Is(err, schemas.ErrSessionBroken) {
		r.logger.Warn("Attempt failed, restarting from navigation.", fields...)
		return
	}
	r.logger.Debug("Attempt failed.", fields...)
}

// classify marks failures that a fresh attempt on the same page cannot fix.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, schemas.ErrSessionBroken) || errors.Is(err, context.Canceled) {
		return Permanent(err)
	}
	return err
}

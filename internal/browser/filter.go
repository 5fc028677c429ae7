// internal/browser/filter.go
package browser

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/markasorgu/internal/config"
	"github.com/xkilldash9x/markasorgu/internal/observability"
)

// interceptCommandTimeout bounds each fail/continue answer sent for a paused request.
const interceptCommandTimeout = 2 * time.Second

// ResourceFilter is the set of resource categories a session refuses to load.
// The zero value blocks nothing.
type ResourceFilter struct {
	blocked map[network.ResourceType]struct{}
}

// NewResourceFilter builds a filter blocking the given resource types.
func NewResourceFilter(types ...network.ResourceType) ResourceFilter {
	f := ResourceFilter{blocked: make(map[network.ResourceType]struct{}, len(types))}
	for _, rt := range types {
		f.blocked[rt] = struct{}{}
	}
	return f
}

// NewResourceFilterFromNames builds a filter from configured category names such as "image".
func NewResourceFilterFromNames(names []string) (ResourceFilter, error) {
	types, err := config.ParseResourceTypes(names)
	if err != nil {
		return ResourceFilter{}, err
	}
	return NewResourceFilter(types...), nil
}

// Blocks reports whether requests of the given type are refused.
func (f ResourceFilter) Blocks(rt network.ResourceType) bool {
	_, ok := f.blocked[rt]
	return ok
}

// Empty reports whether the filter blocks nothing.
func (f ResourceFilter) Empty() bool {
	return len(f.blocked) == 0
}

// Types returns the blocked categories in a stable order.
func (f ResourceFilter) Types() []network.ResourceType {
	out := make([]network.ResourceType, 0, len(f.blocked))
	for rt := range f.blocked {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Action returns the chromedp action that installs the filter on a tab.
// It must run on the tab context itself so the listener lives as long as the tab.
func (f ResourceFilter) Action(logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if f.Empty() {
			return nil
		}
		chromedp.ListenTarget(ctx, func(ev interface{}) {
			if paused, ok := ev.(*fetch.EventRequestPaused); ok {
				// Answering on the event goroutine would deadlock the target handler.
				go f.answer(ctx, paused, logger)
			}
		})
		return fetch.Enable().Do(ctx)
	})
}

// answer fails or continues a paused request.
func (f ResourceFilter) answer(ctx context.Context, ev *fetch.EventRequestPaused, logger *zap.Logger) {
	cmdCtx, cancel := context.WithTimeout(ctx, interceptCommandTimeout)
	defer cancel()

	var err error
	if f.Blocks(ev.ResourceType) {
		observability.BlockedRequests.WithLabelValues(strings.ToLower(ev.ResourceType.String())).Inc()
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(cmdCtx)
	} else {
		err = fetch.ContinueRequest(ev.RequestID).Do(cmdCtx)
	}
	if err != nil && ctx.Err() == nil {
		logger.Debug("Failed to answer paused request",
			zap.String("url", ev.Request.URL),
			zap.String("resource_type", ev.ResourceType.String()),
			zap.Error(err))
	}
}

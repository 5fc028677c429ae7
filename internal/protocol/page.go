// Package protocol drives the trademark research page through the steps of a
// search or a detail lookup. It only talks to the page through the Page
// interface, so selector details stay in the browser package.
package protocol

import "context"

// Page is the page-object view of a browser tab.
type Page interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error
	// HasInput reports whether an input whose placeholder contains substr exists.
	HasInput(ctx context.Context, substr string) (bool, error)
	// FillInput replaces the value of the input whose placeholder contains substr.
	FillInput(ctx context.Context, substr, text string) error
	// HasButton reports whether a button whose label contains substr exists.
	HasButton(ctx context.Context, substr string) (bool, error)
	// ClickButton clicks the first button whose label contains substr.
	ClickButton(ctx context.Context, substr string) error
	// ResultsRendered reports whether at least one table row beyond the header is present.
	ResultsRendered(ctx context.Context) (bool, error)
	// HTML returns a snapshot of the rendered document.
	HTML(ctx context.Context) (string, error)
}

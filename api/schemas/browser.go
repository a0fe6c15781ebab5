package schemas

import (
	"context"
	"time"
)

// QueryStrategy selects how a locator query is resolved in the page.
type QueryStrategy string

const (
	// ByCSS resolves the query with querySelector semantics.
	ByCSS QueryStrategy = "css"
	// ByXPath resolves the query with XPath semantics.
	ByXPath QueryStrategy = "xpath"
)

// Locator is an opaque description of where in the remote UI a piece of
// information or control lives. Name is used only for logs and error
// messages; orchestration code never inspects Query.
type Locator struct {
	Name  string
	Query string
	By    QueryStrategy
}

// CSS builds a CSS locator.
func CSS(name, query string) Locator { return Locator{Name: name, Query: query, By: ByCSS} }

// XPath builds an XPath locator.
func XPath(name, query string) Locator { return Locator{Name: name, Query: query, By: ByXPath} }

// Condition is what an Await call waits for before returning.
type Condition string

const (
	// CondExists waits for at least one matching element to be present.
	CondExists Condition = "exists"
	// CondAllExist waits for the currently rendered set of matches.
	CondAllExist Condition = "all-exist"
	// CondClickable waits for a visible, enabled element.
	CondClickable Condition = "clickable"
)

// StepExecutor is the primitive UI layer: wait for a locator under an
// explicit timeout, then interact or extract. Every session operation is a
// fixed sequence of these calls; a timed-out wait surfaces as ErrStepTimeout
// and a failed read-back as ErrExtraction, both converted to Failure at the
// session boundary.
//
// Extracted text is the canonical rich-text form: a tree walk concatenating
// text nodes and image alt placeholders with whitespace collapsed.
type StepExecutor interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Reload(ctx context.Context, timeout time.Duration) error

	ClearCookies(ctx context.Context) error
	SetCookies(ctx context.Context, domain, blob string) error

	Await(ctx context.Context, loc Locator, cond Condition, timeout time.Duration) error
	Click(ctx context.Context, loc Locator, timeout time.Duration) error
	Type(ctx context.Context, loc Locator, text string, timeout time.Duration) error

	Text(ctx context.Context, loc Locator, timeout time.Duration) (string, error)
	Texts(ctx context.Context, loc Locator, timeout time.Duration) ([]string, error)
	Attr(ctx context.Context, loc Locator, name string, timeout time.Duration) (string, error)
	Attrs(ctx context.Context, loc Locator, name string, timeout time.Duration) ([]string, error)

	ScrollBy(ctx context.Context, pixels int) error
	Sleep(ctx context.Context, d time.Duration) error

	Close(ctx context.Context) error
}

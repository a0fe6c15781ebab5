package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lishuo8109/weibopilot/api/schemas"
	"github.com/lishuo8109/weibopilot/internal/config"
)

const pollInterval = 200 * time.Millisecond

// Handle is one account's exclusive browser context: a dedicated Chrome
// process (own allocator, own proxy) plus a single tab driven over CDP. It
// implements schemas.StepExecutor. The handle itself is not safe for
// concurrent use; the owning session serializes access.
type Handle struct {
	id       string
	allocCtx context.Context
	ctx      context.Context

	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc

	logger  *zap.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	isClosed bool
}

// Ensure Handle implements the step executor port.
var _ schemas.StepExecutor = (*Handle)(nil)

// NewHandle launches a browser context configured for one account. The proxy
// may be empty. The returned handle is live: the browser process has started
// and a blank tab is connected.
func NewHandle(ctx context.Context, cfg config.BrowserConfig, proxy string, logger *zap.Logger) (*Handle, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.DisableImages {
		opts = append(opts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	id := uuid.New().String()
	h := &Handle{
		id:          id,
		allocCtx:    allocCtx,
		ctx:         tabCtx,
		cancelAlloc: cancelAlloc,
		cancelTab:   cancelTab,
		logger:      logger.Named("browser").With(zap.String("handle_id", id)),
	}
	if cfg.StepsPerSecond > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.StepsPerSecond), 1)
	}

	// Start the browser process and connect the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser context: %w", err)
	}
	h.logger.Debug("Browser handle started.", zap.Bool("headless", cfg.Headless), zap.String("proxy", proxy))
	return h, nil
}

// run executes chromedp actions under the step's explicit timeout, pacing
// against the handle's rate limiter. A deadline hit inside the step (rather
// than in the caller's context) is reported as ErrStepTimeout.
func (h *Handle) run(ctx context.Context, timeout time.Duration, step string, actions ...chromedp.Action) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate wait: %w", step, err)
		}
	}

	opCtx, cancel := combineContext(h.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		opCtx, tcancel = context.WithTimeout(opCtx, timeout)
		defer tcancel()
	}

	if err := chromedp.Run(opCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%s: %w", step, schemas.ErrStepTimeout)
		}
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// runExtract is run for read-back steps: any non-timeout error becomes an
// extraction failure, since the interaction already happened and only the
// confirming read is missing.
func (h *Handle) runExtract(ctx context.Context, timeout time.Duration, step string, actions ...chromedp.Action) error {
	err := h.run(ctx, timeout, step, actions...)
	if err == nil || errors.Is(err, schemas.ErrStepTimeout) || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("%s: %v: %w", step, err, schemas.ErrExtraction)
}

// Navigate loads the given URL and waits for the document to be ready.
func (h *Handle) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return h.run(ctx, timeout, "navigate "+url,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Reload refreshes the current page.
func (h *Handle) Reload(ctx context.Context, timeout time.Duration) error {
	return h.run(ctx, timeout, "reload",
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// ClearCookies drops all cookies in this browser context.
func (h *Handle) ClearCookies(ctx context.Context) error {
	return h.run(ctx, 10*time.Second, "clear cookies",
		chromedp.ActionFunc(func(c context.Context) error {
			return network.ClearBrowserCookies().Do(c)
		}),
	)
}

// SetCookies injects a pre-authenticated "name=value; ..." blob for the
// given domain.
func (h *Handle) SetCookies(ctx context.Context, domain, blob string) error {
	pairs, err := parseCookieBlob(blob)
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return h.run(ctx, 10*time.Second, "set cookies",
		chromedp.ActionFunc(func(c context.Context) error {
			for _, pair := range pairs {
				err := network.SetCookie(pair.Name, pair.Value).
					WithDomain(domain).
					WithPath("/").
					Do(c)
				if err != nil {
					return fmt.Errorf("cookie %s: %w", pair.Name, err)
				}
			}
			return nil
		}),
	)
}

// Await blocks until the locator satisfies the condition or the timeout
// elapses.
func (h *Handle) Await(ctx context.Context, loc schemas.Locator, cond schemas.Condition, timeout time.Duration) error {
	expr := existsExpr(loc)
	if cond == schemas.CondClickable {
		expr = clickableExpr(loc)
	}
	var ok bool
	return h.run(ctx, timeout, "await "+loc.Name,
		chromedp.Poll(expr, &ok, chromedp.WithPollingInterval(pollInterval)),
	)
}

// Click waits for the element to be clickable, then clicks it.
func (h *Handle) Click(ctx context.Context, loc schemas.Locator, timeout time.Duration) error {
	var ok bool
	return h.run(ctx, timeout, "click "+loc.Name,
		chromedp.Poll(clickableExpr(loc), &ok, chromedp.WithPollingInterval(pollInterval)),
		chromedp.Click(loc.Query, queryOpt(loc)),
	)
}

// Type waits for the element and sends the text as key events.
func (h *Handle) Type(ctx context.Context, loc schemas.Locator, text string, timeout time.Duration) error {
	var ok bool
	return h.run(ctx, timeout, "type into "+loc.Name,
		chromedp.Poll(clickableExpr(loc), &ok, chromedp.WithPollingInterval(pollInterval)),
		chromedp.SendKeys(loc.Query, text, queryOpt(loc)),
	)
}

// Text waits for the locator and extracts its canonical rich text.
func (h *Handle) Text(ctx context.Context, loc schemas.Locator, timeout time.Duration) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	var ok bool
	err := h.runExtract(ctx, timeout, "text of "+loc.Name,
		chromedp.Poll(existsExpr(loc), &ok, chromedp.WithPollingInterval(pollInterval)),
		chromedp.Evaluate(textScript(loc), &res),
	)
	if err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("text of %s: element vanished: %w", loc.Name, schemas.ErrExtraction)
	}
	return res.Value, nil
}

// Texts waits for at least one match and extracts the rich text of all
// current matches.
func (h *Handle) Texts(ctx context.Context, loc schemas.Locator, timeout time.Duration) ([]string, error) {
	var texts []string
	var ok bool
	err := h.runExtract(ctx, timeout, "texts of "+loc.Name,
		chromedp.Poll(existsExpr(loc), &ok, chromedp.WithPollingInterval(pollInterval)),
		chromedp.Evaluate(textsScript(loc), &texts),
	)
	if err != nil {
		return nil, err
	}
	return texts, nil
}

// Attr waits for the locator and reads one attribute from the first match.
func (h *Handle) Attr(ctx context.Context, loc schemas.Locator, name string, timeout time.Duration) (string, error) {
	var res struct {
		Found bool   `json:"found"`
		Value string `json:"value"`
	}
	var ok bool
	err := h.runExtract(ctx, timeout, "attr "+name+" of "+loc.Name,
		chromedp.Poll(existsExpr(loc), &ok, chromedp.WithPollingInterval(pollInterval)),
		chromedp.Evaluate(attrScript(loc, name), &res),
	)
	if err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("attr %s of %s: missing: %w", name, loc.Name, schemas.ErrExtraction)
	}
	return res.Value, nil
}

// Attrs waits for at least one match and reads the attribute from all of
// them.
func (h *Handle) Attrs(ctx context.Context, loc schemas.Locator, name string, timeout time.Duration) ([]string, error) {
	var values []string
	var ok bool
	err := h.runExtract(ctx, timeout, "attrs "+name+" of "+loc.Name,
		chromedp.Poll(existsExpr(loc), &ok, chromedp.WithPollingInterval(pollInterval)),
		chromedp.Evaluate(attrsScript(loc, name), &values),
	)
	if err != nil {
		return nil, err
	}
	return values, nil
}

// ScrollBy scrolls the viewport vertically by the given pixel amount.
func (h *Handle) ScrollBy(ctx context.Context, pixels int) error {
	return h.run(ctx, 10*time.Second, "scroll",
		chromedp.Evaluate(scrollScript(pixels), nil),
	)
}

// Sleep is a context-aware settle delay between steps.
func (h *Handle) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears down the tab and the browser process. Idempotent.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.isClosed {
		h.mu.Unlock()
		return nil
	}
	h.isClosed = true
	h.mu.Unlock()

	h.logger.Debug("Closing browser handle.")
	h.cancelTab()
	h.cancelAlloc()
	return nil
}

// queryOpt maps the locator strategy onto a chromedp query option. XPath
// queries go through DOM.performSearch.
func queryOpt(loc schemas.Locator) chromedp.QueryOption {
	if loc.By == schemas.ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

package browser

import (
	"context"
)

// combineContext derives a context from primary (which carries the CDP target
// values) that is additionally canceled when secondary is done. chromedp
// needs the primary's values; the caller's deadline rides along via the
// secondary.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

package browser

import "context"

// CombineContext returns a context derived from ctx1, so it keeps the CDP
// values chromedp stores there, that is also canceled when ctx2 is.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

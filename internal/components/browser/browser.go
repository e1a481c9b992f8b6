// Package browser drives a chrome instance with chromedp and exposes an
// already navigated tab as a fetch.Page.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"scrapebridge/internal/components/telemetry"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	report_browser_launch   = "browser.launch"
	report_browser_navigate = "browser.navigate"
	report_page_evaluate    = "page.evaluate"
)

var ErrClosed = errors.New("browser page closed")

type Options struct {
	Headless  bool
	UserAgent string
	// ExecPath overrides the chrome binary, empty means chromedp finds it.
	ExecPath string
}

// Browser owns the chrome process, closing it closes every page.
type Browser struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tel         telemetry.API
}

func Launch(ctx context.Context, opts Options, tel telemetry.API) (*Browser, error) {
	tel = telemetry.NewScopedAPI("browser", tel)

	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
	)
	if opts.UserAgent != "" {
		execOpts = append(execOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, execOpts...)
	tel.ReportDebug(report_browser_launch, opts.Headless)

	return &Browser{allocCtx: allocCtx, cancelAlloc: cancel, tel: tel}, nil
}

func (b *Browser) Close() {
	b.cancelAlloc()
}

// NewPage opens a tab and navigates it to `url`, the tab keeps whatever session state
// the navigation establishes.
func (b *Browser) NewPage(url string) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(b.allocCtx)

	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(url),
	)
	if err != nil {
		cancel()
		b.tel.ReportBroken(report_browser_navigate, err, url)
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	return newPage(tabCtx, cancel, chromedpRunner{}, b.tel), nil
}

// runner evaluates one script in a tab.
type runner interface {
	run(tabCtx context.Context, expression string) (json.RawMessage, error)
}

type chromedpRunner struct{}

func (chromedpRunner) run(tabCtx context.Context, expression string) (json.RawMessage, error) {
	var out []byte
	err := chromedp.Run(tabCtx, chromedp.Evaluate(
		expression,
		&out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		},
	))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

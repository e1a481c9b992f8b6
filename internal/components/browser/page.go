package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"scrapebridge/internal/components/telemetry"
	"sync"
)

type evaluation struct {
	ctx        context.Context
	expression string
	reply      chan<- evaluationResult
}

type evaluationResult struct {
	value json.RawMessage
	err   error
}

// Page is a browser tab, evaluations are sent over a channel to a single worker
// goroutine that owns the tab so only serialized values ever cross into it.
type Page struct {
	requests chan evaluation
	done     chan struct{}
	tabDone  <-chan struct{}
	close    sync.Once
	cancel   context.CancelFunc
	tel      telemetry.API
}

func newPage(tabCtx context.Context, cancel context.CancelFunc, r runner, tel telemetry.API) *Page {
	p := &Page{
		requests: make(chan evaluation),
		done:     make(chan struct{}),
		tabDone:  tabCtx.Done(),
		cancel:   cancel,
		tel:      tel,
	}
	go p.worker(tabCtx, r)
	return p
}

func (p *Page) worker(tabCtx context.Context, r runner) {
	for {
		select {
		case <-p.done:
			return
		case <-tabCtx.Done():
			return
		case req := <-p.requests:
			runCtx, cancel := context.WithCancel(tabCtx)
			stop := context.AfterFunc(req.ctx, cancel)

			value, err := r.run(runCtx, req.expression)

			stop()
			cancel()
			if err != nil && req.ctx.Err() != nil {
				err = req.ctx.Err()
			}
			req.reply <- evaluationResult{value: value, err: err}
		}
	}
}

// Evaluate calls the javascript function `fn` with `arg` inside the page and returns the
// JSON value it resolves to.
func (p *Page) Evaluate(ctx context.Context, fn string, arg json.RawMessage) (json.RawMessage, error) {
	if len(arg) == 0 {
		arg = json.RawMessage("undefined")
	}
	expression := fmt.Sprintf("(%s)(%s)", fn, arg)

	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	reply := make(chan evaluationResult, 1)
	select {
	case p.requests <- evaluation{ctx: ctx, expression: expression, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	case <-p.tabDone:
		return nil, ErrClosed
	}

	select {
	case res := <-reply:
		if res.err != nil {
			p.tel.ReportWarning(report_page_evaluate, res.err)
		}
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the worker and closes the tab.
func (p *Page) Close() {
	p.close.Do(func() {
		close(p.done)
		p.cancel()
	})
}

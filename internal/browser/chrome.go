package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/types"
)

const (
	jsElementState = `function() {
	const style = window.getComputedStyle(this);
	const rect = this.getBoundingClientRect();
	const tag = this.tagName.toLowerCase();
	const enabled = !this.disabled;
	const editable = enabled && (this.isContentEditable || ((tag === 'input' || tag === 'textarea') && !this.readOnly));
	return {
		tag: tag,
		visible: style.display !== 'none' && style.visibility !== 'hidden' && rect.width > 0 && rect.height > 0,
		enabled: enabled,
		editable: editable,
	};
}`
	jsText      = `function() { return (this.innerText || this.textContent || '').trim(); }`
	jsAttribute = `function(name) { return this.hasAttribute(name) ? this.getAttribute(name) : null; }`
	jsOptions   = `function() {
	if (this.tagName !== 'SELECT') {
		return {select: false, values: []};
	}
	return {select: true, values: Array.from(this.options).map(o => o.value)};
}`
	// select elements do not react reliably to key strokes, so values are
	// assigned directly and the events a user interaction would fire are dispatched.
	jsSetValue = `function(v) {
	this.value = v;
	this.dispatchEvent(new Event('input', {bubbles: true}));
	this.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`
)

// ChromeProvider starts (or connects to) one Chrome instance and hands out a
// new tab per acquired Page.
type ChromeProvider struct {
	*Config
	allocContext  context.Context
	cancelAlloc   context.CancelFunc
	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

func NewChromeProvider(c *Config) *ChromeProvider {
	var allocContext context.Context
	var cancelAlloc context.CancelFunc
	if c.RemoteURL != "" {
		allocContext, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), c.RemoteURL)
	} else {
		opts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.WindowSize(c.WindowWidth, c.WindowHeight),
			// without these the recaptcha widget refuses to be clicked
			chromedp.Flag("enable-automation", false),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		)
		if c.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(c.UserAgent))
		}
		if c.ShowWindow {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		allocContext, cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	}
	return &ChromeProvider{
		Config:       c,
		allocContext: allocContext,
		cancelAlloc:  cancelAlloc,
	}
}

func (p *ChromeProvider) Cancel() {
	p.mu.Lock()
	if p.cancelBrowser != nil {
		p.cancelBrowser()
	}
	p.mu.Unlock()
	p.cancelAlloc()
}

// browser returns the context of the Chrome instance, starting it on first use.
func (p *ChromeProvider) browser(logger *slog.Logger) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browserCtx != nil && p.browserCtx.Err() == nil {
		return p.browserCtx, nil
	}
	browserCtx, cancel := chromedp.NewContext(p.allocContext)

	// The first Run allocates the browser and has to use the browser context
	// itself, a derived context would tear the browser down when cancelled.
	actions := []chromedp.Action{}
	if log.Debug {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			protocolVersion, product, revision, userAgent, jsVersion, err := cdpbrowser.GetVersion().Do(ctx)
			if err != nil {
				logger.Warn("failed to get chrome version", slog.String("err", err.Error()))
				return nil
			}
			logger.Debug(fmt.Sprintf("chrome version: protocolVersion=%s, product=%s, revision=%s, userAgent=%s, jsVersion=%s",
				protocolVersion, product, revision, userAgent, jsVersion))
			return nil
		}))
	}
	if err := chromedp.Run(browserCtx, actions...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	p.browserCtx, p.cancelBrowser = browserCtx, cancel
	return browserCtx, nil
}

func (p *ChromeProvider) Acquire(ctx context.Context) (Page, error) {
	logger := log.LoggerFromContext(ctx).With(slog.String("browser", string(CHROME_PROVIDER_TYPE)))
	browserCtx, err := p.browser(logger)
	if err != nil {
		return nil, err
	}
	// contexts derived from the browser context open a new tab in it
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open browser tab: %w", err)
	}
	logger.Debug("acquired browser tab")
	return &ChromePage{ctx: tabCtx, cancel: cancel, logger: logger}, nil
}

// ChromePage is one Chrome tab.
type ChromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

type chromeElement struct {
	node *cdp.Node
}

func (e *chromeElement) Describe() string {
	return e.node.FullXPath()
}

func nodeOf(el Element) (*cdp.Node, error) {
	ce, ok := el.(*chromeElement)
	if !ok || ce.node == nil {
		return nil, ErrForeignNode
	}
	return ce.node, nil
}

// run executes actions in the tab while honoring the cancellation of ctx.
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.ctx.Err() != nil {
		return ErrPageClosed
	}
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *ChromePage) call(ctx context.Context, el Element, fn string, res any, args ...any) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(n.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer runtime.ReleaseObject(obj.ObjectID).Do(ctx)
		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}, args...).Do(ctx)
	}))
}

func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("navigating", slog.String("url", url))
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *ChromePage) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *ChromePage) Query(ctx context.Context, q types.ElementQuery) ([]Element, error) {
	sel, by := q.Value, chromedp.ByQueryAll
	if q.By != types.ByCSS {
		x, err := q.XPath()
		if err != nil {
			return nil, err
		}
		sel, by = x, chromedp.BySearch
	}
	var nodes []*cdp.Node
	// AtLeast(0) returns the current matches instead of polling for one
	if err := p.run(ctx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	els := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &chromeElement{node: n})
	}
	return els, nil
}

func (p *ChromePage) State(ctx context.Context, el Element) (ElementState, error) {
	var s ElementState
	err := p.call(ctx, el, jsElementState, &s)
	return s, err
}

func (p *ChromePage) Text(ctx context.Context, el Element) (string, error) {
	var s string
	err := p.call(ctx, el, jsText, &s)
	return s, err
}

func (p *ChromePage) Attribute(ctx context.Context, el Element, name string) (string, bool, error) {
	var v *string
	if err := p.call(ctx, el, jsAttribute, &v, name); err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (p *ChromePage) Options(ctx context.Context, el Element) ([]string, error) {
	var res struct {
		Select bool     `json:"select"`
		Values []string `json:"values"`
	}
	if err := p.call(ctx, el, jsOptions, &res); err != nil {
		return nil, err
	}
	if !res.Select {
		return nil, ErrNotSelectable
	}
	return res.Values, nil
}

func (p *ChromePage) Click(ctx context.Context, el Element) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.MouseClickNode(n))
}

func (p *ChromePage) Hover(ctx context.Context, el Element) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID).Do(ctx); err != nil {
			return err
		}
		quads, err := dom.GetContentQuads().WithNodeID(n.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		if len(quads) == 0 || len(quads[0]) < 8 {
			return errors.New("element has no layout box")
		}
		x, y := quadCenter(quads[0])
		return chromedp.MouseEvent(input.MouseMoved, x, y).Do(ctx)
	}))
}

func quadCenter(q dom.Quad) (float64, float64) {
	var x, y float64
	for i := 0; i < 8; i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4
}

func (p *ChromePage) ScrollIntoView(ctx context.Context, el Element) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID).Do(ctx)
	}))
}

func (p *ChromePage) SendKeys(ctx context.Context, el Element, text string) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.SendKeys([]cdp.NodeID{n.NodeID}, text, chromedp.ByNodeID))
}

func (p *ChromePage) SetValue(ctx context.Context, el Element, value string) error {
	var ok bool
	return p.call(ctx, el, jsSetValue, &ok, value)
}

func (p *ChromePage) HTML(ctx context.Context) (string, error) {
	var body string
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))
	return body, err
}

func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Close closes the tab. It is safe to call Close more than once.
func (p *ChromePage) Close() error {
	p.cancel()
	p.logger.Debug("released browser tab")
	return nil
}

package browser

import (
	"context"
	"net/url"
	"os/exec"
	"testing"
	"time"

	"github.com/jakopako/sitecheckr/internal/types"
)

const chromeTestPage = `<html><body>
<a id="link" href="https://www.sogeti.com/services/">Services</a>
<a id="nolink">Nowhere</a>
<input id="name" type="text" value="">
<select id="country"><option value="">-</option><option value="DE">Germany</option></select>
<span id="hidden" style="display:none">hidden</span>
</body></html>`

func newTestChromeProvider(t *testing.T) *ChromeProvider {
	t.Helper()
	found := false
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			found = true
			break
		}
	}
	if !found {
		t.Skip("no chrome binary found")
	}
	p := NewChromeProvider(&Config{Type: CHROME_PROVIDER_TYPE, WindowWidth: 1280, WindowHeight: 800})
	t.Cleanup(p.Cancel)
	return p
}

func chromeQueryOne(t *testing.T, ctx context.Context, p Page, q types.ElementQuery) Element {
	t.Helper()
	els, err := p.Query(ctx, q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(els) != 1 {
		t.Fatalf("expected exactly one match for %s, got %d", q, len(els))
	}
	return els[0]
}

func TestChromeProviderSharesOneBrowser(t *testing.T) {
	cp := newTestChromeProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first, err := cp.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	browserCtx := cp.browserCtx
	second, err := cp.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.browserCtx != browserCtx {
		t.Fatal("expected the second tab to be opened in the same browser")
	}
	first.Close()
	// closing a tab does not stop the browser
	if err := browserCtx.Err(); err != nil {
		t.Fatalf("expected the browser to be running, got %v", err)
	}
	if err := second.Navigate(ctx, "about:blank"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second.Close()
}

func TestChromePageElementFunctions(t *testing.T) {
	cp := newTestChromeProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := cp.Acquire(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if err := p.Navigate(ctx, "data:text/html,"+url.PathEscape(chromeTestPage)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	link := chromeQueryOne(t, ctx, p, types.ID("link"))
	if text, err := p.Text(ctx, link); err != nil || text != "Services" {
		t.Fatalf("expected text 'Services', got '%s' (%v)", text, err)
	}
	if href, ok, err := p.Attribute(ctx, link, "href"); err != nil || !ok || href != "https://www.sogeti.com/services/" {
		t.Fatalf("unexpected href '%s' %t (%v)", href, ok, err)
	}
	if _, ok, err := p.Attribute(ctx, chromeQueryOne(t, ctx, p, types.ID("nolink")), "href"); err != nil || ok {
		t.Fatalf("expected no href, got %t (%v)", ok, err)
	}

	s, err := p.State(ctx, chromeQueryOne(t, ctx, p, types.ID("hidden")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Visible || s.Tag != "span" {
		t.Fatalf("unexpected state %+v", s)
	}

	sel := chromeQueryOne(t, ctx, p, types.ID("country"))
	opts, err := p.Options(ctx, sel)
	if err != nil || len(opts) != 2 || opts[1] != "DE" {
		t.Fatalf("unexpected options %v (%v)", opts, err)
	}
	if _, err := p.Options(ctx, link); err != ErrNotSelectable {
		t.Fatalf("expected ErrNotSelectable, got %v", err)
	}
	if err := p.SetValue(ctx, chromeQueryOne(t, ctx, p, types.ID("name")), "Ada"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

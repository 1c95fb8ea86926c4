package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/types"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// RevealOnHoverAttr marks an element that becomes visible when the element
	// with the attribute's value as id is hovered.
	RevealOnHoverAttr = "data-reveal-on-hover"
	// RevealOnClickAttr is the click counterpart of RevealOnHoverAttr.
	RevealOnClickAttr = "data-reveal-on-click"
)

const emptyPage = "<html><head></head><body></body></html>"

// MockProvider serves pages from memory. It executes no javascript, instead a
// handful of conventions (anchors navigate, checkboxes toggle, reveal
// attributes unhide elements) emulate the interactions scenarios rely on.
type MockProvider struct {
	*Config
	pagesMap map[string]string
	acquired atomic.Int64
	open     atomic.Int64
}

func NewMockProvider(c *Config) *MockProvider {
	mp := &MockProvider{
		Config:   c,
		pagesMap: map[string]string{},
	}
	for _, p := range c.MockPages {
		mp.pagesMap[normalizeURL(p.URL)] = p.Content
	}
	return mp
}

// To comply with the Provider interface
func (mp *MockProvider) Cancel() {}

func (mp *MockProvider) Acquire(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mp.acquired.Add(1)
	mp.open.Add(1)
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(emptyPage))
	return &MockPage{
		provider: mp,
		doc:      doc,
		url:      "about:blank",
		logger:   log.LoggerFromContext(ctx).With(slog.String("browser", string(MOCK_PROVIDER_TYPE))),
	}, nil
}

// Acquired returns the number of pages handed out so far.
func (mp *MockProvider) Acquired() int64 {
	return mp.acquired.Load()
}

// Open returns the number of pages that have not been closed yet.
func (mp *MockProvider) Open() int64 {
	return mp.open.Load()
}

func (mp *MockProvider) page(u string) (string, bool) {
	p, ok := mp.pagesMap[normalizeURL(u)]
	return p, ok
}

func normalizeURL(u string) string {
	return strings.TrimSuffix(u, "/")
}

// MockPage is a Page on top of a goquery document.
type MockPage struct {
	mu       sync.Mutex
	provider *MockProvider
	doc      *goquery.Document
	url      string
	gen      int
	closed   bool
	logger   *slog.Logger
}

type mockElement struct {
	page *MockPage
	gen  int
	node *html.Node
}

func (e *mockElement) Describe() string {
	var sb strings.Builder
	sb.WriteString("<" + e.node.Data)
	for _, a := range e.node.Attr {
		if a.Key == "id" || a.Key == "class" || a.Key == "name" {
			fmt.Fprintf(&sb, " %s=%q", a.Key, a.Val)
		}
	}
	sb.WriteString(">")
	return sb.String()
}

// lock locks the page and checks that it is still usable. On success the
// caller has to unlock the page.
func (p *MockPage) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPageClosed
	}
	return nil
}

func (p *MockPage) nodeOf(el Element) (*html.Node, error) {
	me, ok := el.(*mockElement)
	if !ok || me.page != p {
		return nil, ErrForeignNode
	}
	if me.gen != p.gen {
		return nil, ErrStaleElement
	}
	return me.node, nil
}

func (p *MockPage) load(u, content string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return err
	}
	p.doc = doc
	p.url = u
	p.gen++
	return nil
}

func (p *MockPage) Navigate(ctx context.Context, u string) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.mu.Unlock()
	content, ok := p.provider.page(u)
	if !ok {
		return errors.New("page not found")
	}
	p.logger.Debug("navigating", slog.String("url", u))
	return p.load(u, content)
}

func (p *MockPage) URL(ctx context.Context) (string, error) {
	if err := p.lock(ctx); err != nil {
		return "", err
	}
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *MockPage) Query(ctx context.Context, q types.ElementQuery) ([]Element, error) {
	if err := p.lock(ctx); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()

	var nodes []*html.Node
	if q.By == types.ByCSS {
		nodes = p.doc.Find(q.Value).Nodes
	} else {
		expr, err := q.XPath()
		if err != nil {
			return nil, err
		}
		nodes, err = htmlquery.QueryAll(p.doc.Nodes[0], expr)
		if err != nil {
			return nil, fmt.Errorf("invalid query %s: %w", q, err)
		}
	}
	els := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		els = append(els, &mockElement{page: p, gen: p.gen, node: n})
	}
	return els, nil
}

func (p *MockPage) State(ctx context.Context, el Element) (ElementState, error) {
	if err := p.lock(ctx); err != nil {
		return ElementState{}, err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return ElementState{}, err
	}
	_, disabled := attr(n, "disabled")
	_, readonly := attr(n, "readonly")
	s := ElementState{
		Tag:     n.Data,
		Visible: visible(n),
		Enabled: !disabled,
	}
	s.Editable = s.Enabled && !readonly && editable(n)
	return s, nil
}

func (p *MockPage) Text(ctx context.Context, el Element) (string, error) {
	if err := p.lock(ctx); err != nil {
		return "", err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(p.doc.FindNodes(n).Text()), " "), nil
}

func (p *MockPage) Attribute(ctx context.Context, el Element, name string) (string, bool, error) {
	if err := p.lock(ctx); err != nil {
		return "", false, err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return "", false, err
	}
	v, ok := attr(n, name)
	return v, ok, nil
}

func (p *MockPage) Options(ctx context.Context, el Element) ([]string, error) {
	if err := p.lock(ctx); err != nil {
		return nil, err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return nil, err
	}
	if n.DataAtom != atom.Select {
		return nil, ErrNotSelectable
	}
	values := []string{}
	p.doc.FindNodes(n).Find("option").Each(func(_ int, s *goquery.Selection) {
		values = append(values, optionValue(s))
	})
	return values, nil
}

func (p *MockPage) Click(ctx context.Context, el Element) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return err
	}
	p.reveal(RevealOnClickAttr, n)

	switch {
	case n.DataAtom == atom.Input:
		t, _ := attr(n, "type")
		if t == "checkbox" || t == "radio" {
			if _, checked := attr(n, "checked"); checked {
				removeAttr(n, "checked")
			} else {
				setAttr(n, "checked", "checked")
			}
		}
	case n.DataAtom == atom.A:
		href, ok := attr(n, "href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return nil
		}
		target, err := p.resolve(href)
		if err != nil {
			return err
		}
		content, ok := p.provider.page(target)
		if !ok {
			p.logger.Debug("page not served by mock, loading empty page", slog.String("url", target))
			content = emptyPage
		}
		return p.load(target, content)
	}
	return nil
}

func (p *MockPage) resolve(href string) (string, error) {
	base, err := url.Parse(p.url)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (p *MockPage) Hover(ctx context.Context, el Element) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return err
	}
	p.reveal(RevealOnHoverAttr, n)
	return nil
}

// reveal unhides every element whose attr names the id of n.
func (p *MockPage) reveal(attrName string, n *html.Node) {
	id, ok := attr(n, "id")
	if !ok || id == "" {
		return
	}
	p.doc.Find(fmt.Sprintf("[%s=%q]", attrName, id)).Each(func(_ int, s *goquery.Selection) {
		s.RemoveAttr("hidden")
		s.RemoveAttr("style")
	})
}

func (p *MockPage) ScrollIntoView(ctx context.Context, el Element) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.mu.Unlock()
	_, err := p.nodeOf(el)
	return err
}

func (p *MockPage) SendKeys(ctx context.Context, el Element, text string) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return err
	}
	if n.DataAtom == atom.Textarea {
		s := p.doc.FindNodes(n)
		s.SetText(s.Text() + text)
		return nil
	}
	v, _ := attr(n, "value")
	setAttr(n, "value", v+text)
	return nil
}

func (p *MockPage) SetValue(ctx context.Context, el Element, value string) error {
	if err := p.lock(ctx); err != nil {
		return err
	}
	defer p.mu.Unlock()
	n, err := p.nodeOf(el)
	if err != nil {
		return err
	}
	switch n.DataAtom {
	case atom.Select:
		p.doc.FindNodes(n).Find("option").Each(func(_ int, s *goquery.Selection) {
			if optionValue(s) == value {
				s.SetAttr("selected", "selected")
			} else {
				s.RemoveAttr("selected")
			}
		})
	case atom.Textarea:
		p.doc.FindNodes(n).SetText(value)
	default:
		setAttr(n, "value", value)
	}
	return nil
}

func (p *MockPage) HTML(ctx context.Context) (string, error) {
	if err := p.lock(ctx); err != nil {
		return "", err
	}
	defer p.mu.Unlock()
	return p.doc.Html()
}

func (p *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("mock browser screenshot: %w", errors.ErrUnsupported)
}

func (p *MockPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.provider.open.Add(-1)
	}
	return nil
}

func optionValue(s *goquery.Selection) string {
	if v, ok := s.Attr("value"); ok {
		return v
	}
	return strings.TrimSpace(s.Text())
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

// visible reports whether neither n nor one of its ancestors is hidden.
func visible(n *html.Node) bool {
	if n.DataAtom == atom.Input {
		if t, _ := attr(n, "type"); t == "hidden" {
			return false
		}
	}
	for c := n; c != nil && c.Type == html.ElementNode; c = c.Parent {
		if _, hidden := attr(c, "hidden"); hidden {
			return false
		}
		style, _ := attr(c, "style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func editable(n *html.Node) bool {
	if v, ok := attr(n, "contenteditable"); ok && v != "false" {
		return true
	}
	switch n.DataAtom {
	case atom.Textarea:
		return true
	case atom.Input:
		t, _ := attr(n, "type")
		switch t {
		case "", "text", "email", "tel", "search", "url", "password", "number":
			return true
		}
	}
	return false
}

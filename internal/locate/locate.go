// Package locate maps element queries to live elements of a page.
package locate

import (
	"context"
	"fmt"

	"github.com/antchfx/xpath"
	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/types"
)

// Resolver resolves queries against the current DOM of one page. It never
// waits, callers combine it with the wait package.
type Resolver struct {
	page browser.Page
}

func NewResolver(p browser.Page) *Resolver {
	return &Resolver{page: p}
}

// Resolve returns the single element matching q. Zero matches yield an
// ErrElementNotFound error and several matches an ErrElementAmbiguous error.
func (r *Resolver) Resolve(ctx context.Context, q types.ElementQuery) (browser.Element, error) {
	els, err := r.ResolveAll(ctx, q)
	if err != nil {
		return nil, err
	}
	switch len(els) {
	case 0:
		return nil, &types.Error{Kind: types.ErrElementNotFound, Op: "resolve", Locator: q.String()}
	case 1:
		return els[0], nil
	default:
		return nil, &types.Error{
			Kind:    types.ErrElementAmbiguous,
			Op:      "resolve",
			Locator: q.String(),
			Err:     fmt.Errorf("%d elements match", len(els)),
		}
	}
}

// ResolveAll returns every element matching q, possibly none.
func (r *Resolver) ResolveAll(ctx context.Context, q types.ElementQuery) ([]browser.Element, error) {
	if err := Check(q); err != nil {
		return nil, err
	}
	els, err := r.page.Query(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.Error{Kind: types.ErrActionFailed, Op: "resolve", Locator: q.String(), Err: err}
	}
	return els, nil
}

// Check reports queries that can never match because they are malformed,
// including XPath expressions that do not compile.
func Check(q types.ElementQuery) error {
	err := q.Validate()
	if err == nil && q.By != types.ByCSS {
		var expr string
		if expr, err = q.XPath(); err == nil {
			_, err = xpath.Compile(expr)
		}
	}
	if err != nil {
		return &types.Error{Kind: types.ErrActionFailed, Op: "resolve", Locator: q.String(), Err: err}
	}
	return nil
}

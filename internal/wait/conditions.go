package wait

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jakopako/sitecheckr/internal/browser"
	"github.com/jakopako/sitecheckr/internal/types"
)

// Present is satisfied once q matches at least one element.
func Present(p browser.Page, q types.ElementQuery) Condition {
	return func(ctx context.Context) (bool, error) {
		els, err := p.Query(ctx, q)
		return len(els) > 0, err
	}
}

func state(p browser.Page, el browser.Element, check func(browser.ElementState) bool) Condition {
	return func(ctx context.Context) (bool, error) {
		s, err := p.State(ctx, el)
		if err != nil {
			return false, err
		}
		return check(s), nil
	}
}

func ElementVisible(p browser.Page, el browser.Element) Condition {
	return state(p, el, func(s browser.ElementState) bool { return s.Visible })
}

func ElementClickable(p browser.Page, el browser.Element) Condition {
	return state(p, el, browser.ElementState.Clickable)
}

func ElementEditable(p browser.Page, el browser.Element) Condition {
	return state(p, el, func(s browser.ElementState) bool { return s.Visible && s.Editable })
}

// FrameAvailable is satisfied once q matches a visible frame or iframe.
func FrameAvailable(p browser.Page, q types.ElementQuery) Condition {
	return func(ctx context.Context) (bool, error) {
		els, err := p.Query(ctx, q)
		if err != nil {
			return false, err
		}
		for _, el := range els {
			s, err := p.State(ctx, el)
			if err != nil {
				return false, err
			}
			if (s.Tag == "iframe" || s.Tag == "frame") && s.Visible {
				return true, nil
			}
		}
		return false, nil
	}
}

// URLMatches is satisfied once the page url matches re.
func URLMatches(p browser.Page, re *regexp.Regexp) Condition {
	return func(ctx context.Context) (bool, error) {
		u, err := p.URL(ctx)
		if err != nil {
			return false, err
		}
		return re.MatchString(u), nil
	}
}

// TextPresent is satisfied once the visible body text contains text.
func TextPresent(p browser.Page, text string) Condition {
	body := types.XPath("//body")
	return func(ctx context.Context) (bool, error) {
		els, err := p.Query(ctx, body)
		if err != nil || len(els) == 0 {
			return false, err
		}
		t, err := p.Text(ctx, els[0])
		if err != nil {
			return false, err
		}
		return strings.Contains(t, text), nil
	}
}

// CompilePattern compiles a url pattern. Patterns prefixed with "re:" are
// regular expressions, everything else is a glob matched against the whole
// url where * matches any sequence and ? any single character.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if expr, ok := strings.CutPrefix(pattern, "re:"); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid url pattern %q: %w", pattern, err)
		}
		return re, nil
	}
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String()), nil
}

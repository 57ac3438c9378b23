// Package pagination keeps rich-text pages inside their content box by
// moving trailing overflow onto the following page.
package pagination

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/document"
	"github.com/georgepadayatti/signflow/logging"
)

// DefaultMaxPages caps how far a single reflow may cascade.
const DefaultMaxPages = 500

// ErrRunaway is returned when overflow keeps cascading past the page cap.
var ErrRunaway = errors.New("pagination did not settle")

// Splitter detects overflow on one page. It returns the content that stays
// on the page and the content that must move on. Content that fits comes
// back unchanged with an empty overflow.
type Splitter interface {
	Split(content string) (truncated, overflow string, err error)
}

// SplitterFunc adapts a function to Splitter.
type SplitterFunc func(content string) (string, string, error)

// Split implements Splitter.
func (f SplitterFunc) Split(content string) (string, string, error) {
	return f(content)
}

// Result describes what a reflow changed.
type Result struct {
	// Touched lists the pages whose content changed, in order.
	Touched []int
	// Created is the number of pages added.
	Created int
}

// Changed reports whether the reflow modified the document.
func (r Result) Changed() bool {
	return len(r.Touched) > 0
}

// Engine runs overflow propagation to quiescence.
type Engine struct {
	Splitter Splitter
	MaxPages int
	Logger   logrus.FieldLogger
}

// New returns an engine using the given splitter.
func New(s Splitter, logger logrus.FieldLogger) *Engine {
	return &Engine{Splitter: s, MaxPages: DefaultMaxPages, Logger: logging.OrDiscard(logger)}
}

// Reflow re-checks page n after an edit. Overflow is prepended to page n+1,
// creating it when needed, and the check continues on n+1. Pages are
// processed strictly left to right and never shrink.
func (e *Engine) Reflow(doc *document.Document, page int) (Result, error) {
	var res Result
	if doc.Background != document.BackgroundRichText {
		return res, fmt.Errorf("%w: reflow needs a rich-text document, got %q", document.ErrInvalidField, doc.Background)
	}
	if page < 1 || page > doc.Pages {
		return res, fmt.Errorf("%w: page %d of %d", document.ErrInvalidField, page, doc.Pages)
	}
	limit := e.MaxPages
	if limit <= 0 {
		limit = DefaultMaxPages
	}

	for n := page; ; n++ {
		content := doc.PageContent(n)
		if content == "" {
			return res, nil
		}
		truncated, overflow, err := e.Splitter.Split(content)
		if err != nil {
			return res, fmt.Errorf("failed to measure page %d: %w", n, err)
		}
		if overflow == "" {
			return res, nil
		}
		if n+1 > limit {
			return res, fmt.Errorf("%w: page %d exceeds the limit of %d", ErrRunaway, n+1, limit)
		}

		if err := doc.SetPageContent(n, truncated); err != nil {
			return res, err
		}
		if doc.EnsurePageCount(n + 1) {
			res.Created++
		}
		if err := doc.SetPageContent(n+1, overflow+doc.PageContent(n+1)); err != nil {
			return res, err
		}
		res.Touched = appendPage(res.Touched, n)
		res.Touched = appendPage(res.Touched, n+1)

		logging.OrDiscard(e.Logger).WithFields(logrus.Fields{
			"document": doc.ID,
			"page":     n,
			"moved":    len(overflow),
		}).Debug("moved overflow to next page")
	}
}

// ReflowAll reflows every page from the first, returning the combined result.
func (e *Engine) ReflowAll(doc *document.Document) (Result, error) {
	var total Result
	for n := 1; n <= doc.Pages; n++ {
		res, err := e.Reflow(doc, n)
		total.Created += res.Created
		for _, p := range res.Touched {
			total.Touched = appendPage(total.Touched, p)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func appendPage(pages []int, p int) []int {
	if len(pages) > 0 && pages[len(pages)-1] == p {
		return pages
	}
	return append(pages, p)
}

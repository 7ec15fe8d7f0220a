// Package browser defines the small page contract the login helpers drive,
// with adapters for playwright-go and go-rod.
//
// Lookups and waits return a WaitResult instead of a timeout error so callers
// can see that a bounded wait expired and decide to carry on.
package browser

import (
	"errors"
	"strings"
	"time"
)

// WaitResult is the outcome of a bounded wait.
type WaitResult int

const (
	Completed WaitResult = iota
	TimedOut
)

func (r WaitResult) String() string {
	switch r {
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by operations on a page whose session has been closed.
var ErrClosed = errors.New("browser: page closed")

// Query lists selector alternatives for one element. An element matches when
// it matches any CSS selector, or when it is a TextTag element whose text
// contains one of Text.
type Query struct {
	CSS     []string
	TextTag string
	Text    []string
}

// Describe renders the query for logs.
func (q Query) Describe() string {
	parts := make([]string, 0, len(q.CSS)+len(q.Text))
	parts = append(parts, q.CSS...)
	for _, text := range q.Text {
		parts = append(parts, q.TextTag+`:text("`+text+`")`)
	}
	return strings.Join(parts, " | ")
}

// Element is a located, visible element.
type Element interface {
	Fill(value string) error
	Click() error
}

// Page is one browser tab. All operations are blocking and bounded by the
// given timeout or the driver's default timeout.
type Page interface {
	URL() string
	Goto(url string, timeout time.Duration) error
	Reload(timeout time.Duration) error

	// Evaluate runs a JavaScript function expression with arg and returns the
	// JSON-decoded result.
	Evaluate(script string, arg any) (any, error)

	// FindVisible waits up to timeout for the first element matching q to be
	// visible. A nil error with TimedOut means nothing matched in time.
	FindVisible(q Query, timeout time.Duration) (Element, WaitResult, error)

	WaitForURL(match func(url string) bool, timeout time.Duration) (WaitResult, error)
	WaitForNetworkIdle(timeout time.Duration) (WaitResult, error)

	// Screenshot captures the full page as PNG.
	Screenshot() ([]byte, error)
}

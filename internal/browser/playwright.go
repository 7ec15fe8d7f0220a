package browser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightPage adapts a playwright.Page.
type PlaywrightPage struct {
	page playwright.Page
}

// NewPlaywrightPage wraps page.
func NewPlaywrightPage(page playwright.Page) *PlaywrightPage {
	return &PlaywrightPage{page: page}
}

func (p *PlaywrightPage) URL() string { return p.page.URL() }

func (p *PlaywrightPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(ms(timeout)),
	})
	return err
}

func (p *PlaywrightPage) Reload(timeout time.Duration) error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(ms(timeout)),
	})
	return err
}

func (p *PlaywrightPage) Evaluate(script string, arg any) (any, error) {
	return p.page.Evaluate(script, arg)
}

func (p *PlaywrightPage) FindVisible(q Query, timeout time.Duration) (Element, WaitResult, error) {
	selector := PlaywrightSelector(q)
	if selector == "" {
		return nil, TimedOut, fmt.Errorf("empty query")
	}
	first := p.page.Locator(selector).First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(ms(timeout)),
	})
	if err != nil {
		if errors.Is(err, playwright.ErrTimeout) {
			return nil, TimedOut, nil
		}
		return nil, TimedOut, err
	}
	return playwrightElement{locator: first}, Completed, nil
}

func (p *PlaywrightPage) WaitForURL(match func(url string) bool, timeout time.Duration) (WaitResult, error) {
	err := p.page.WaitForURL(match, playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(ms(timeout)),
	})
	return playwrightWaitResult(err)
}

func (p *PlaywrightPage) WaitForNetworkIdle(timeout time.Duration) (WaitResult, error) {
	err := p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(ms(timeout)),
	})
	return playwrightWaitResult(err)
}

func (p *PlaywrightPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
	})
}

type playwrightElement struct {
	locator playwright.Locator
}

func (e playwrightElement) Fill(value string) error { return e.locator.Fill(value) }
func (e playwrightElement) Click() error            { return e.locator.Click() }

// PlaywrightSelector renders q as one Playwright selector list, e.g.
// `input[type="email"], button:has-text("Login")`.
func PlaywrightSelector(q Query) string {
	parts := make([]string, 0, len(q.CSS)+len(q.Text))
	parts = append(parts, q.CSS...)
	tag := q.TextTag
	if tag == "" {
		tag = "*"
	}
	for _, text := range q.Text {
		parts = append(parts, tag+":has-text("+strconv.Quote(text)+")")
	}
	return strings.Join(parts, ", ")
}

func playwrightWaitResult(err error) (WaitResult, error) {
	switch {
	case err == nil:
		return Completed, nil
	case errors.Is(err, playwright.ErrTimeout):
		return TimedOut, nil
	default:
		return TimedOut, err
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const (
	rodPollInterval    = 100 * time.Millisecond
	rodRequestIdleTime = 500 * time.Millisecond
)

// RodPage adapts a *rod.Page.
type RodPage struct {
	page *rod.Page
}

// NewRodPage wraps page.
func NewRodPage(page *rod.Page) *RodPage {
	return &RodPage{page: page}
}

func (p *RodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *RodPage) Goto(url string, timeout time.Duration) error {
	tp := p.page.Timeout(timeout)
	defer tp.CancelTimeout()
	if err := tp.Navigate(url); err != nil {
		return err
	}
	return tp.WaitLoad()
}

func (p *RodPage) Reload(timeout time.Duration) error {
	tp := p.page.Timeout(timeout)
	defer tp.CancelTimeout()
	if err := tp.Reload(); err != nil {
		return err
	}
	return tp.WaitLoad()
}

func (p *RodPage) Evaluate(script string, arg any) (any, error) {
	res, err := p.page.Evaluate(&rod.EvalOptions{
		JS:           script,
		JSArgs:       []interface{}{arg},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	return res.Value.Val(), nil
}

func (p *RodPage) FindVisible(q Query, timeout time.Duration) (Element, WaitResult, error) {
	if len(q.CSS) == 0 && len(q.Text) == 0 {
		return nil, TimedOut, fmt.Errorf("empty query")
	}

	tp := p.page.Timeout(timeout)
	defer tp.CancelTimeout()

	race := tp.Race()
	if len(q.CSS) > 0 {
		race = race.Element(strings.Join(q.CSS, ", "))
	}
	if len(q.Text) > 0 {
		tag := q.TextTag
		if tag == "" {
			tag = "*"
		}
		race = race.ElementR(tag, RodTextPattern(q.Text))
	}

	el, err := race.Do()
	if err == nil {
		err = el.WaitVisible()
	}
	if err != nil {
		res, werr := rodWaitResult(err)
		return nil, res, werr
	}
	return rodElement{el: el.Context(p.page.GetContext())}, Completed, nil
}

func (p *RodPage) WaitForURL(match func(url string) bool, timeout time.Duration) (WaitResult, error) {
	deadline := time.Now().Add(timeout)
	for {
		if match(p.URL()) {
			return Completed, nil
		}
		if time.Now().After(deadline) {
			return TimedOut, nil
		}
		select {
		case <-p.page.GetContext().Done():
			return TimedOut, p.page.GetContext().Err()
		case <-time.After(rodPollInterval):
		}
	}
}

func (p *RodPage) WaitForNetworkIdle(timeout time.Duration) (WaitResult, error) {
	tp := p.page.Timeout(timeout)
	defer tp.CancelTimeout()

	wait := tp.WaitRequestIdle(rodRequestIdleTime, nil, nil, nil)
	wait()
	if err := tp.GetContext().Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return TimedOut, nil
		}
		return TimedOut, err
	}
	return Completed, nil
}

func (p *RodPage) Screenshot() ([]byte, error) {
	return p.page.Screenshot(true, nil)
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Fill(value string) error {
	if err := e.el.SelectAllText(); err != nil {
		return err
	}
	return e.el.Input(value)
}

func (e rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

// RodTextPattern builds the regex ElementR matches element text against.
func RodTextPattern(texts []string) string {
	quoted := make([]string, len(texts))
	for i, text := range texts {
		quoted[i] = regexp.QuoteMeta(text)
	}
	return "/" + strings.Join(quoted, "|") + "/"
}

func rodWaitResult(err error) (WaitResult, error) {
	if errors.Is(err, context.DeadlineExceeded) {
		return TimedOut, nil
	}
	return TimedOut, err
}

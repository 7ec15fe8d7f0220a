package login

import (
	"context"
	"time"

	"github.com/kuitang/e2eauth/internal/browser"
	"github.com/kuitang/e2eauth/internal/obs"
)

// Strategy is one way of signing a page in.
type Strategy struct {
	Name  string
	Login func(ctx context.Context, page browser.Page) error
}

// DefaultStrategies returns the API login followed by the form login, both
// using the orchestrator's credentials.
func (o *Orchestrator) DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "api", Login: func(ctx context.Context, page browser.Page) error {
			return o.APILogin(ctx, page, Credentials{})
		}},
		{Name: "form", Login: func(ctx context.Context, page browser.Page) error {
			return o.FormLogin(ctx, page, Credentials{})
		}},
	}
}

// RunStrategies tries each strategy in order and stops at the first one that
// returns nil and passes CheckSession. A strategy that returns nil without a
// session fails with *VerificationError. If none succeed, every failure is
// returned in an *AggregateAuthenticationError. A done context ends the run
// and is recorded against the strategy that would have run next.
func RunStrategies(ctx context.Context, page browser.Page, strategies []Strategy) error {
	agg := &AggregateAuthenticationError{}
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			agg.Attempts = append(agg.Attempts, Attempt{Strategy: s.Name, Err: err})
			break
		}

		sctx := obs.WithStrategy(ctx, s.Name)
		log := obs.From(sctx).With("pkg", "login")
		start := time.Now()

		err := s.Login(sctx, page)
		if err == nil && !CheckSession(page) {
			err = &VerificationError{Strategy: s.Name}
		}
		if err == nil {
			log.Info("login_strategy_succeeded", "dur_ms", time.Since(start).Milliseconds())
			return nil
		}

		log.Warn("login_strategy_failed", "dur_ms", time.Since(start).Milliseconds(), "error", err)
		agg.Attempts = append(agg.Attempts, Attempt{Strategy: s.Name, Err: err})
	}
	return agg
}

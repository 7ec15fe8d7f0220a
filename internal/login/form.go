package login

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kuitang/e2eauth/internal/browser"
	"github.com/kuitang/e2eauth/internal/urlutil"
)

// FormLogin signs in through the login page. Zero creds use the
// orchestrator's account.
//
// Missing or invisible fields and expired waits are logged and skipped. Only
// navigation failures and unexpected driver errors are returned. The
// post-submit waits run only when the submit control was clicked.
func (o *Orchestrator) FormLogin(ctx context.Context, page browser.Page, creds Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	creds = o.resolve(creds)
	log := o.logger(ctx).With("flow", "form")

	if current := page.URL(); !IsLoginURL(current) {
		target := urlutil.BuildAbsolute(o.siteURL, "/login")
		log.Debug("open_login_page", "from", current, "to", target)
		if err := page.Goto(target, o.navigationTimeout); err != nil {
			return fmt.Errorf("form login: open %s: %w", target, err)
		}
	}

	if err := o.fillIfVisible(log, page, "username", UsernameQuery, creds.Username); err != nil {
		return err
	}
	if err := o.fillIfVisible(log, page, "password", PasswordQuery, creds.Password); err != nil {
		return err
	}

	submit, res, err := page.FindVisible(SubmitQuery, o.elementTimeout)
	if err != nil {
		return fmt.Errorf("form login: find submit: %w", err)
	}
	if res == browser.TimedOut {
		log.Warn("form_field_missing", "field", "submit", "query", SubmitQuery.Describe())
		return nil
	}
	if err := o.pace(ctx, creds.Username); err != nil {
		return fmt.Errorf("form login: %w", err)
	}
	if err := submit.Click(); err != nil {
		return fmt.Errorf("form login: click submit: %w", err)
	}
	log.Debug("form_submitted", "username", creds.Username)

	res, err = page.WaitForURL(func(u string) bool { return !IsLoginURL(u) }, o.navigationTimeout)
	logWait(log, "leave_login_page", res, err)

	res, err = page.WaitForNetworkIdle(o.networkIdleTimeout)
	logWait(log, "network_idle", res, err)
	return nil
}

func (o *Orchestrator) fillIfVisible(log *slog.Logger, page browser.Page, field string, q browser.Query, value string) error {
	el, res, err := page.FindVisible(q, o.elementTimeout)
	if err != nil {
		return fmt.Errorf("form login: find %s: %w", field, err)
	}
	if res == browser.TimedOut {
		log.Warn("form_field_missing", "field", field, "query", q.Describe())
		return nil
	}
	if err := el.Fill(value); err != nil {
		return fmt.Errorf("form login: fill %s: %w", field, err)
	}
	return nil
}

package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/kuitang/e2eauth/internal/browser"
	"github.com/kuitang/e2eauth/internal/logutil"
	"github.com/kuitang/e2eauth/internal/urlutil"
)

// APILogin requests a token from the login endpoint, opens the site root,
// stores the token under both storage keys and reloads. Zero creds use the
// orchestrator's account.
//
// A non-2xx response is an *AuthenticationError. The closing network-idle
// wait is best-effort.
func (o *Orchestrator) APILogin(ctx context.Context, page browser.Page, creds Credentials) error {
	creds = o.resolve(creds)
	log := o.logger(ctx).With("flow", "api")

	token, err := o.requestToken(ctx, creds)
	if err != nil {
		return err
	}
	logTokenClaims(log, token)

	root := urlutil.BuildAbsolute(o.siteURL, "/")
	if err := page.Goto(root, o.navigationTimeout); err != nil {
		return fmt.Errorf("api login: open %s: %w", root, err)
	}

	entries := map[string]string{AuthTokenKey: token, TokenKey: token}
	if err := browser.WriteStorage(page, entries); err != nil {
		return fmt.Errorf("api login: %w", err)
	}
	logStorageWritten(log, entries)

	if err := page.Reload(o.navigationTimeout); err != nil {
		return fmt.Errorf("api login: reload: %w", err)
	}
	res, err := page.WaitForNetworkIdle(o.networkIdleTimeout)
	logWait(log, "network_idle", res, err)
	return nil
}

// requestToken posts username and password form-encoded to the login
// endpoint as an OAuth2 password grant and returns access_token.
func (o *Orchestrator) requestToken(ctx context.Context, creds Credentials) (string, error) {
	if err := o.pace(ctx, creds.Username); err != nil {
		return "", fmt.Errorf("api login: %w", err)
	}
	cfg := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  urlutil.BuildAbsolute(o.apiBaseURL, LoginPath),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	httpCtx := context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)

	tok, err := cfg.PasswordCredentialsToken(httpCtx, creds.Username, creds.Password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			(retrieveErr.Response.StatusCode < 200 || retrieveErr.Response.StatusCode > 299) {
			authErr := newAuthenticationError(retrieveErr.Response)
			o.logger(ctx).Warn("token_request_rejected",
				"status", authErr.StatusCode,
				"body", logutil.TruncateForLog(string(retrieveErr.Body), 200),
			)
			return "", authErr
		}
		return "", fmt.Errorf("api login: token request: %w", err)
	}
	return tok.AccessToken, nil
}

// logTokenClaims logs sub and exp of a JWT token without verifying it.
// Opaque tokens are logged redacted.
func logTokenClaims(log *slog.Logger, token string) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		log.Debug("token_received", "token", logutil.RedactToken(token))
		return
	}
	attrs := []any{"token", logutil.RedactToken(token), "sub", claims.Subject}
	if claims.ExpiresAt != nil {
		attrs = append(attrs, "exp", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	log.Debug("token_received", attrs...)
}

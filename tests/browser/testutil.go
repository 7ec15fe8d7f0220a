// Package browser runs the login helpers against a real Chromium driven by
// Playwright or Rod. The application under test is a small fake served by
// httptest: a bilingual login page, the token endpoint and a home page.
//
// Tests skip when the driver or browser binaries are not installed.
package browser

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	authbrowser "github.com/kuitang/e2eauth/internal/browser"
	"github.com/kuitang/e2eauth/internal/config"
	"github.com/kuitang/e2eauth/internal/login"
	"github.com/kuitang/e2eauth/internal/ratelimit"
)

const (
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second

	testUsername = "admin@example.com"
	testPassword = "testpass123"

	tokenSigningKey = "fake-app-signing-key"

	// Login attempts the fake app accepts per account before answering 429.
	fakeAppLoginBurst = 20
)

var (
	sessionsMu sync.Mutex
	sessions   = map[string]*authbrowser.Session{}
	skipReason = map[string]string{}
)

// FakeApp is the application under test.
type FakeApp struct {
	Server  *httptest.Server
	BaseURL string

	apiDown     atomic.Bool
	tokenIssued atomic.Int32

	passwordSalt []byte
	passwordHash []byte
	limiter      *ratelimit.Limiter
}

// SetupFakeApp starts a fresh fake application for one test.
func SetupFakeApp(t *testing.T) *FakeApp {
	t.Helper()

	app := &FakeApp{
		passwordSalt: make([]byte, 16),
		limiter:      ratelimit.New(ratelimit.Config{RPS: 1, Burst: fakeAppLoginBurst, CleanupInterval: time.Minute}),
	}
	if _, err := rand.Read(app.passwordSalt); err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	app.passwordHash = hashPassword(testPassword, app.passwordSalt)

	throttled := ratelimit.Middleware(app.limiter, func(r *http.Request) string {
		return r.FormValue("username")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", app.handleLoginPage)
	mux.Handle("POST "+login.LoginPath, throttled(http.HandlerFunc(app.handleToken)))
	mux.HandleFunc("GET /{$}", app.handleHome)

	app.Server = httptest.NewServer(mux)
	app.BaseURL = app.Server.URL
	t.Cleanup(func() {
		app.Server.Close()
		app.limiter.Stop()
	})
	return app
}

// hashPassword uses small Argon2id parameters; the fake app only needs a
// realistic check, not a strong one.
func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 8*1024, 1, 32)
}

func (a *FakeApp) checkPassword(username, password string) bool {
	if username != testUsername {
		return false
	}
	return subtle.ConstantTimeCompare(hashPassword(password, a.passwordSalt), a.passwordHash) == 1
}

// SetAPIDown makes the token endpoint answer 503, forcing the form path.
func (a *FakeApp) SetAPIDown(down bool) { a.apiDown.Store(down) }

// TokensIssued counts successful token requests, from the API or the form.
func (a *FakeApp) TokensIssued() int { return int(a.tokenIssued.Load()) }

// Orchestrator returns an orchestrator pointed at the fake app.
func (a *FakeApp) Orchestrator(creds login.Credentials) *login.Orchestrator {
	return login.New(login.Options{
		APIBaseURL:         a.BaseURL,
		SiteURL:            a.BaseURL,
		Credentials:        creds,
		ElementTimeout:     browserMaxTimeout,
		NavigationTimeout:  browserMaxTimeout,
		NetworkIdleTimeout: browserMaxTimeout,
		HTTPClient:         &http.Client{Timeout: browserMaxTimeout},
	})
}

// handleToken issues a signed token for the test account. The form page
// calls it too, with the X-Requested-With header.
func (a *FakeApp) handleToken(w http.ResponseWriter, r *http.Request) {
	if a.apiDown.Load() && r.Header.Get("X-Requested-With") != "fake-app" {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !a.checkPassword(r.PostForm.Get("username"), r.PostForm.Get("password")) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Incorrect username or password"})
		return
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   testUsername,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(tokenSigningKey))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.tokenIssued.Add(1)
	_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token, "token_type": "bearer"})
}

func (a *FakeApp) handleLoginPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, loginPageHTML)
}

func (a *FakeApp) handleHome(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, homePageHTML)
}

// The login page only matches the helpers' selectors by placeholder and
// button text, so both fallbacks get exercised.
const loginPageHTML = `<!doctype html>
<html lang="zh-CN">
<head><meta charset="utf-8"><title>登录</title></head>
<body>
  <form id="login-form" onsubmit="return false;">
    <input id="account" placeholder="请输入邮箱" autocomplete="off">
    <input id="secret" type="password">
    <button id="go" type="button">登录</button>
    <p id="error" hidden></p>
  </form>
  <script>
    document.getElementById("go").addEventListener("click", async () => {
      const body = new URLSearchParams({
        username: document.getElementById("account").value,
        password: document.getElementById("secret").value,
      });
      const resp = await fetch("/api/v1/auth/login", {
        method: "POST",
        headers: {"X-Requested-With": "fake-app"},
        body,
      });
      if (!resp.ok) {
        const el = document.getElementById("error");
        el.textContent = "登录失败 " + resp.status;
        el.hidden = false;
        return;
      }
      const data = await resp.json();
      localStorage.setItem("token", data.access_token);
      window.location.href = "/";
    });
  </script>
</body>
</html>`

const homePageHTML = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>Home</title></head>
<body><h1 id="welcome">Welcome</h1></body>
</html>`

// =============================================================================
// Browser lifecycle helpers
// =============================================================================

// InitBrowser launches (once per driver) a headless Chromium. Skips the test
// if the driver is not available.
func InitBrowser(t *testing.T, driver string) *authbrowser.Session {
	t.Helper()

	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	if reason, ok := skipReason[driver]; ok {
		t.Skip(reason)
	}
	if s, ok := sessions[driver]; ok {
		return s
	}

	s, err := authbrowser.Launch(context.Background(), authbrowser.LaunchOptions{
		Driver:         driver,
		Headless:       true,
		DefaultTimeout: browserMaxTimeout,
	})
	if err != nil {
		skipReason[driver] = fmt.Sprintf("%s driver not available: %v", driver, err)
		t.Skip(skipReason[driver])
	}
	sessions[driver] = s
	return s
}

// NewPage opens a blank tab. Every FakeApp has its own origin, so tabs never
// see another test's storage.
func NewPage(t *testing.T, driver string) authbrowser.Page {
	t.Helper()

	page, err := InitBrowser(t, driver).NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	return page
}

// drivers lists the drivers browser tests run against.
func drivers() []string {
	return []string{config.DriverPlaywright, config.DriverRod}
}

func TestMain(m *testing.M) {
	code := m.Run()

	sessionsMu.Lock()
	for _, s := range sessions {
		_ = s.Close()
	}
	sessionsMu.Unlock()

	os.Exit(code)
}

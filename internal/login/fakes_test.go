package login

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kuitang/e2eauth/internal/browser"
)

// fakePage is an in-memory browser.Page. Fields named in present are found
// as visible. Clicking submit runs onSubmit, which plays the app's part.
type fakePage struct {
	url     string
	storage map[string]string
	present map[string]bool

	filled   map[string]string
	onSubmit func(p *fakePage)

	evalErr  error
	fillErr  error
	findErr  error
	gotoErr  error
	idleWait browser.WaitResult

	gotos, reloads, finds, clicks, writes, screenshots int
	urlWaits, idleWaits                                int
}

func newFakePage(url string) *fakePage {
	return &fakePage{
		url:     url,
		storage: map[string]string{},
		present: map[string]bool{},
		filled:  map[string]string{},
	}
}

// withLoginForm marks all three form controls present.
func (p *fakePage) withLoginForm() *fakePage {
	p.present["username"] = true
	p.present["password"] = true
	p.present["submit"] = true
	return p
}

// uiInteractions counts everything except storage reads.
func (p *fakePage) uiInteractions() int {
	return p.gotos + p.reloads + p.finds + p.clicks + p.writes + p.urlWaits + p.idleWaits
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Goto(url string, _ time.Duration) error {
	p.gotos++
	if p.gotoErr != nil {
		return p.gotoErr
	}
	p.url = url
	return nil
}

func (p *fakePage) Reload(time.Duration) error {
	p.reloads++
	return nil
}

func (p *fakePage) Evaluate(script string, arg any) (any, error) {
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	switch script {
	case browser.ReadStorageScript:
		out := map[string]any{}
		for _, k := range arg.([]any) {
			key := k.(string)
			if v, ok := p.storage[key]; ok {
				out[key] = v
			} else {
				out[key] = nil
			}
		}
		return out, nil
	case browser.WriteStorageScript:
		p.writes++
		for k, v := range arg.(map[string]any) {
			p.storage[k] = v.(string)
		}
		return true, nil
	}
	return nil, errors.New("fakePage: unexpected script")
}

func (p *fakePage) FindVisible(q browser.Query, _ time.Duration) (browser.Element, browser.WaitResult, error) {
	p.finds++
	if p.findErr != nil {
		return nil, browser.TimedOut, p.findErr
	}
	name := queryName(q)
	if !p.present[name] {
		return nil, browser.TimedOut, nil
	}
	return &fakeElement{page: p, name: name}, browser.Completed, nil
}

func (p *fakePage) WaitForURL(match func(string) bool, _ time.Duration) (browser.WaitResult, error) {
	p.urlWaits++
	if match(p.url) {
		return browser.Completed, nil
	}
	return browser.TimedOut, nil
}

func (p *fakePage) WaitForNetworkIdle(time.Duration) (browser.WaitResult, error) {
	p.idleWaits++
	return p.idleWait, nil
}

func (p *fakePage) Screenshot() ([]byte, error) {
	p.screenshots++
	return []byte("\x89PNG fake"), nil
}

type fakeElement struct {
	page *fakePage
	name string
}

func (e *fakeElement) Fill(value string) error {
	if e.page.fillErr != nil {
		return e.page.fillErr
	}
	e.page.filled[e.name] = value
	return nil
}

func (e *fakeElement) Click() error {
	e.page.clicks++
	if e.name == "submit" && e.page.onSubmit != nil {
		e.page.onSubmit(e.page)
	}
	return nil
}

func queryName(q browser.Query) string {
	switch {
	case len(q.CSS) > 0 && q.CSS[0] == UsernameQuery.CSS[0]:
		return "username"
	case len(q.CSS) > 0 && q.CSS[0] == PasswordQuery.CSS[0]:
		return "password"
	case len(q.CSS) > 0 && q.CSS[0] == SubmitQuery.CSS[0]:
		return "submit"
	default:
		return strings.Join(q.CSS, ",")
	}
}

// appAcceptingLogin simulates the app: a correct submit redirects home and
// stores token.
func appAcceptingLogin(creds Credentials, token string) func(p *fakePage) {
	return func(p *fakePage) {
		if p.filled["username"] != creds.Username || p.filled["password"] != creds.Password {
			return
		}
		p.url = strings.Replace(p.url, "/login", "/dashboard", 1)
		p.storage[TokenKey] = token
	}
}

// tokenServer serves the login endpoint. It answers status with
// access_token when status is 2xx and with an error body otherwise.
func tokenServer(t testing.TB, status int, token string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+LoginPath, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			http.Error(w, "unexpected content type "+ct, http.StatusUnsupportedMediaType)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 200 && status < 300 {
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token, "token_type": "bearer"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Incorrect username or password"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

// credentialCheckingHandler answers 200 with token only for creds sent as a
// password grant.
func credentialCheckingHandler(creds Credentials, token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+LoginPath, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("username") != creds.Username || r.PostForm.Get("password") != creds.Password ||
			r.PostForm.Get("grant_type") != "password" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "bad credentials"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token})
	})
	return mux
}

func testOrchestrator(apiURL string, extra ...func(*Options)) *Orchestrator {
	opts := Options{
		APIBaseURL:         apiURL,
		SiteURL:            "http://app.test",
		ElementTimeout:     10 * time.Millisecond,
		NavigationTimeout:  10 * time.Millisecond,
		NetworkIdleTimeout: 10 * time.Millisecond,
		HTTPClient:         &http.Client{Timeout: 5 * time.Second},
	}
	for _, f := range extra {
		f(&opts)
	}
	return New(opts)
}

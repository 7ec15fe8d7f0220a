package browser

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// storagePage is a Page whose Evaluate understands the storage scripts.
type storagePage struct {
	url     string
	storage map[string]string
	evalErr error
}

func (p *storagePage) URL() string                 { return p.url }
func (p *storagePage) Reload(time.Duration) error  { return nil }
func (p *storagePage) Screenshot() ([]byte, error) { return nil, nil }

func (p *storagePage) Goto(url string, _ time.Duration) error {
	p.url = url
	return nil
}

func (p *storagePage) FindVisible(Query, time.Duration) (Element, WaitResult, error) {
	return nil, TimedOut, nil
}

func (p *storagePage) WaitForURL(func(string) bool, time.Duration) (WaitResult, error) {
	return Completed, nil
}

func (p *storagePage) WaitForNetworkIdle(time.Duration) (WaitResult, error) {
	return Completed, nil
}

func (p *storagePage) Evaluate(script string, arg any) (any, error) {
	if p.evalErr != nil {
		return nil, p.evalErr
	}
	switch script {
	case ReadStorageScript:
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
	case WriteStorageScript:
		for k, v := range arg.(map[string]any) {
			p.storage[k] = v.(string)
		}
		return true, nil
	}
	return nil, errors.New("unexpected script")
}

func TestWaitResultString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "completed", Completed.String())
	require.Equal(t, "timed_out", TimedOut.String())
	require.Equal(t, "unknown", WaitResult(42).String())
}

func TestPlaywrightSelector(t *testing.T) {
	t.Parallel()
	q := Query{
		CSS:     []string{`[type="submit"]`},
		TextTag: "button",
		Text:    []string{"登录", "Log in"},
	}
	require.Equal(t, `[type="submit"], button:has-text("登录"), button:has-text("Log in")`, PlaywrightSelector(q))
	require.Equal(t, `*:has-text("Sign in")`, PlaywrightSelector(Query{Text: []string{"Sign in"}}))
	require.Empty(t, PlaywrightSelector(Query{}))
}

func TestRodTextPattern(t *testing.T) {
	t.Parallel()
	require.Equal(t, `/登入|Log in|Sign\.in/`, RodTextPattern([]string{"登入", "Log in", "Sign.in"}))
}

func TestQueryDescribe(t *testing.T) {
	t.Parallel()
	q := Query{CSS: []string{`input[type="password"]`}, TextTag: "button", Text: []string{"Login"}}
	require.Equal(t, `input[type="password"] | button:text("Login")`, q.Describe())
}

func testWriteThenReadStorage(t *rapid.T) {
	page := &storagePage{url: "http://127.0.0.1:3000/", storage: map[string]string{}}
	token := rapid.StringMatching(`[A-Za-z0-9._\-]{1,40}`).Draw(t, "token")

	if err := WriteStorage(page, map[string]string{"auth_token": token, "token": token}); err != nil {
		t.Fatalf("WriteStorage: %v", err)
	}
	got, err := ReadStorage(page, []string{"auth_token", "token", "absent"})
	if err != nil {
		t.Fatalf("ReadStorage: %v", err)
	}
	if got["auth_token"] != token || got["token"] != token {
		t.Fatalf("storage mismatch: %v (want %q)", got, token)
	}
	if v, ok := got["absent"]; !ok || v != "" {
		t.Fatalf("missing key should read as empty string, got %q (present=%v)", v, ok)
	}
}

func TestWriteThenReadStorage(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testWriteThenReadStorage)
}

func TestReadStorage_Errors(t *testing.T) {
	t.Parallel()

	page := &storagePage{evalErr: errors.New("target closed")}
	_, err := ReadStorage(page, []string{"token"})
	require.ErrorContains(t, err, "target closed")

	page = &storagePage{storage: map[string]string{}}
	require.ErrorContains(t, WriteStorage(&storagePage{evalErr: errors.New("boom")}, map[string]string{"token": "x"}), "write storage")
	got, err := ReadStorage(page, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSnapshotStorage(t *testing.T) {
	t.Parallel()
	page := &storagePage{
		url:     "http://127.0.0.1:3000/dashboard?tab=1",
		storage: map[string]string{"auth_token": "tok-123", "token": ""},
	}
	state, err := SnapshotStorage(page, []string{"auth_token", "token"})
	require.NoError(t, err)
	require.Equal(t, StorageState{
		Origin:       "http://127.0.0.1:3000",
		LocalStorage: map[string]string{"auth_token": "tok-123"},
	}, state)
}

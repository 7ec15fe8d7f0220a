package browser

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/e2eauth/internal/login"
)

// These run without a browser and keep the fake app honest.

func TestFakeApp_ChecksPassword(t *testing.T) {
	app := SetupFakeApp(t)
	client := &http.Client{Timeout: browserMaxTimeout}

	post := func(user, pass string) int {
		resp, err := client.PostForm(app.BaseURL+login.LoginPath, url.Values{"username": {user}, "password": {pass}})
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusOK, post(testUsername, testPassword))
	require.Equal(t, http.StatusUnauthorized, post(testUsername, testPassword+"x"))
	require.Equal(t, http.StatusUnauthorized, post("someone@example.com", testPassword))
	require.Equal(t, 1, app.TokensIssued())
}

func TestFakeApp_ThrottlesRepeatedLogins(t *testing.T) {
	app := SetupFakeApp(t)
	client := &http.Client{Timeout: browserMaxTimeout}

	form := url.Values{"username": {"locked@example.com"}, "password": {"wrong"}}
	for i := 0; i < fakeAppLoginBurst; i++ {
		resp, err := client.PostForm(app.BaseURL+login.LoginPath, form)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
	}

	resp, err := client.PostForm(app.BaseURL+login.LoginPath, form)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "1", resp.Header.Get("Retry-After"))

	// The real test account is unaffected.
	resp, err = client.PostForm(app.BaseURL+login.LoginPath, url.Values{"username": {testUsername}, "password": {testPassword}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

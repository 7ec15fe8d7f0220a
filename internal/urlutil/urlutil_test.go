package urlutil

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

func TestBuildAbsolute(t *testing.T) {
	t.Parallel()
	cases := []struct {
		base string
		path string
		want string
	}{
		{"http://localhost:8000", "/api/v1/auth/login", "http://localhost:8000/api/v1/auth/login"},
		{"http://localhost:8000/", "/api/v1/auth/login", "http://localhost:8000/api/v1/auth/login"},
		{" http://localhost:3000// ", "login", "http://localhost:3000/login"},
		{"http://localhost:3000", "", "http://localhost:3000"},
		{"http://localhost:3000", "https://other.example/x", "https://other.example/x"},
	}
	for _, tc := range cases {
		if got := BuildAbsolute(tc.base, tc.path); got != tc.want {
			t.Fatalf("BuildAbsolute(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}

func testBuildAbsolute_NoDoubleSlash(t *rapid.T) {
	host := rapid.StringMatching(`[a-z]{1,12}`).Draw(t, "host")
	slashes := rapid.IntRange(0, 3).Draw(t, "slashes")
	segment := rapid.StringMatching(`[a-z0-9]{1,12}`).Draw(t, "segment")

	base := "http://" + host
	for i := 0; i < slashes; i++ {
		base += "/"
	}
	got := BuildAbsolute(base, "/"+segment)
	want := fmt.Sprintf("http://%s/%s", host, segment)
	if got != want {
		t.Fatalf("BuildAbsolute(%q) = %q, want %q", base, got, want)
	}
}

func TestBuildAbsolute_NoDoubleSlash(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testBuildAbsolute_NoDoubleSlash)
}

func TestOriginAndIsHTTPURL(t *testing.T) {
	t.Parallel()
	if got := Origin("http://127.0.0.1:4321/login?next=/"); got != "http://127.0.0.1:4321" {
		t.Fatalf("Origin mismatch: %q", got)
	}
	if got := Origin("about:blank"); got != "" {
		t.Fatalf("expected empty origin for about:blank, got %q", got)
	}
	if !IsHTTPURL("https://app.example") || IsHTTPURL("ftp://x") || IsHTTPURL("localhost:8000") {
		t.Fatal("IsHTTPURL classification mismatch")
	}
}

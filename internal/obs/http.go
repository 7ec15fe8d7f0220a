package obs

import (
	"net/http"
	"time"
)

// AccessLogTransport emits one structured access event per outbound request.
type AccessLogTransport struct {
	Pkg  string
	Base http.RoundTripper
}

// NewHTTPClient returns a client whose requests are access-logged under pkg.
func NewHTTPClient(pkg string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &AccessLogTransport{Pkg: pkg},
	}
}

func (t *AccessLogTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(r)

	reqBytes := int64(0)
	if r.ContentLength > 0 {
		reqBytes = r.ContentLength
	}
	durMS := float64(time.Since(start).Microseconds()) / 1000.0

	l := From(r.Context()).With("pkg", t.Pkg)
	if err != nil {
		l.Warn(
			"http_access",
			"method", r.Method,
			"host", r.URL.Host,
			"path", r.URL.Path,
			"dur_ms", durMS,
			"req_bytes", reqBytes,
			"error", err.Error(),
		)
		return nil, err
	}

	l.Debug(
		"http_access",
		"method", r.Method,
		"host", r.URL.Host,
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"dur_ms", durMS,
		"req_bytes", reqBytes,
		"resp_bytes", resp.ContentLength,
	)
	return resp, nil
}

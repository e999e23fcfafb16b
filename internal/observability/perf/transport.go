package perf

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Transport attributes every round trip to the tracer: requests under
// DBBaseURL count as db time, everything else as external time. The span stays
// open until the response body is fully read or closed.
type Transport struct {
	Base      http.RoundTripper
	Tracer    *Tracer
	DBBaseURL string
}

func NewTransport(base http.RoundTripper, t *Tracer, dbBaseURL string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Tracer: t, DBBaseURL: strings.TrimRight(strings.TrimSpace(dbBaseURL), "/")}
}

// NewClient returns the client stage logic must use for outbound calls. A nil
// base uses http.DefaultTransport; either way the base is wrapped by otelhttp.
func NewClient(base http.RoundTripper, t *Tracer, dbBaseURL string, timeout time.Duration) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: NewTransport(otelhttp.NewTransport(base), t, dbBaseURL),
		Timeout:   timeout,
	}
}

func (tr *Transport) Classify(rawURL string) Category {
	if IsUnder(rawURL, tr.DBBaseURL) {
		return DB
	}
	return External
}

func (tr *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t := tr.Tracer
	if t == nil {
		t = FromContext(req.Context())
	}
	base := tr.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t == nil {
		return base.RoundTrip(req)
	}
	end := t.Span(tr.Classify(req.URL.String()))
	resp, err := base.RoundTrip(req)
	if err != nil || resp == nil || resp.Body == nil {
		end()
		return resp, err
	}
	resp.Body = &spanBody{ReadCloser: resp.Body, end: end}
	return resp, nil
}

// IsUnder reports whether rawURL is base or a path/query beneath it.
func IsUnder(rawURL, base string) bool {
	base = strings.TrimRight(base, "/")
	if base == "" || !strings.HasPrefix(rawURL, base) {
		return false
	}
	rest := rawURL[len(base):]
	return rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#'
}

type spanBody struct {
	io.ReadCloser
	once sync.Once
	end  func()
}

func (b *spanBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil {
		b.once.Do(b.end)
	}
	return n, err
}

func (b *spanBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.end)
	return err
}

package perf

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIsUnder(t *testing.T) {
	cases := []struct {
		url, base string
		want      bool
	}{
		{"https://proj.supabase.co/rest/v1/items", "https://proj.supabase.co", true},
		{"https://proj.supabase.co", "https://proj.supabase.co/", true},
		{"https://proj.supabase.co?x=1", "https://proj.supabase.co", true},
		{"https://proj.supabase.com/rest", "https://proj.supabase.co", false},
		{"https://news.example.com/feed", "https://proj.supabase.co", false},
		{"https://news.example.com/feed", "", false},
	}
	for _, tc := range cases {
		if got := IsUnder(tc.url, tc.base); got != tc.want {
			t.Fatalf("IsUnder(%q,%q)=%v want %v", tc.url, tc.base, got, tc.want)
		}
	}
}

func TestTransportClassifiesDBAndExternal(t *testing.T) {
	dbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer dbSrv.Close()
	extSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		_, _ = w.Write([]byte(`<rss/>`))
	}))
	defer extSrv.Close()

	tr := Start()
	client := &http.Client{Transport: NewTransport(nil, tr, dbSrv.URL)}

	for _, u := range []string{dbSrv.URL + "/rest/v1/pipeline_item", extSrv.URL + "/feed"} {
		resp, err := client.Get(u)
		if err != nil {
			t.Fatalf("get %s: %v", u, err)
		}
		_, _ = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
	}

	if tr.Spent(DB) < 5*time.Millisecond {
		t.Fatalf("db time not recorded: %s", tr.Spent(DB))
	}
	if tr.Spent(External) < 5*time.Millisecond {
		t.Fatalf("external time not recorded: %s", tr.Spent(External))
	}
}

type failingTransport struct{ err error }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	time.Sleep(2 * time.Millisecond)
	return nil, f.err
}

func TestTransportClosesSpanOnErrorAndPropagates(t *testing.T) {
	boom := errors.New("connection refused")
	tr := Start()
	client := &http.Client{Transport: NewTransport(failingTransport{err: boom}, tr, "")}

	_, err := client.Get("https://upstream.example.com/api")
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error, got %v", err)
	}
	if tr.Spent(External) <= 0 {
		t.Fatalf("span must be closed on failure")
	}
}

func TestTransportUsesContextTracer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tr := Start()
	client := &http.Client{Transport: NewTransport(nil, nil, "")}
	req, _ := http.NewRequestWithContext(WithTracer(context.Background(), tr), http.MethodGet, srv.URL, nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	_ = resp.Body.Close()
	if s := tr.Finish(nil); s.ExternalMs == nil {
		t.Fatalf("expected external span from context tracer")
	}
}

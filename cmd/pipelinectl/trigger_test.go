package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTrigger(t *testing.T) {
	var gotSecret, gotBody, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("x-cron-secret")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if gotSecret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"error":"Unauthorized"}`))
			return
		}
		w.Header().Set("x-trace-id", "trace-123")
		_, _ = w.Write([]byte(`{"ok":true,"traceId":"trace-123","duration_ms":4,"result":{"fetched":0}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := trigger(context.Background(), srv.Client(), triggerRequest{
		BaseURL: srv.URL + "/",
		Stage:   "ingest",
		Secret:  "s3cret",
		Body:    `{"note":"manual"}`,
	}, &out)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if gotPath != "/functions/v1/ingest" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody != `{"note":"manual"}` {
		t.Fatalf("body = %q", gotBody)
	}
	if !strings.Contains(out.String(), "trace:  trace-123") || !strings.Contains(out.String(), `"fetched": 0`) {
		t.Fatalf("output = %s", out.String())
	}

	out.Reset()
	err = trigger(context.Background(), srv.Client(), triggerRequest{BaseURL: srv.URL, Stage: "cluster", Secret: "nope"}, &out)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v", err)
	}
	if gotBody != "" {
		t.Fatalf("bodiless call sent a body: %q", gotBody)
	}
	if strings.Contains(out.String(), "trace:") {
		t.Fatalf("401 output should have no trace id: %s", out.String())
	}

	err = trigger(context.Background(), srv.Client(), triggerRequest{BaseURL: srv.URL, Stage: "cluster", Secret: "s3cret", Body: "{oops"}, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "valid json") {
		t.Fatalf("invalid body err = %v", err)
	}
}

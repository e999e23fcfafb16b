package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
)

type triggerRequest struct {
	BaseURL string
	Stage   string
	Secret  string
	// Body is sent verbatim; stages only log a preview of it.
	Body    string
}

// trigger calls a stage the way the scheduler does and prints the trace id and
// response body. Any non-200 answer is an error.
func trigger(ctx context.Context, client *http.Client, tr triggerRequest, out io.Writer) error {
	var body io.Reader = http.NoBody
	if b := strings.TrimSpace(tr.Body); b != "" {
		if !json.Valid([]byte(b)) {
			return fmt.Errorf("body is not valid json")
		}
		body = strings.NewReader(b)
	}
	endpoint := strings.TrimRight(tr.BaseURL, "/") + "/functions/v1/" + tr.Stage
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(jobrt.HeaderCronSecret, tr.Secret)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", tr.Stage, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	fmt.Fprintf(out, "status: %d\n", resp.StatusCode)
	if id := resp.Header.Get(jobrt.HeaderTraceID); id != "" {
		fmt.Fprintf(out, "trace:  %s\n", id)
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Fprintf(out, "%s\n", raw)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", tr.Stage, resp.StatusCode)
	}
	return nil
}

func stageSecretVar(stage string) string {
	return strings.ToUpper(stage) + "_CRON_SECRET"
}

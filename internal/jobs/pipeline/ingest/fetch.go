package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/httpx"
)

type entry struct {
	GUID      string
	Link      string
	Title     string
	Summary   string
	Published *time.Time
}

// articleEnvelope is the shape of kind=json sources.
type articleEnvelope struct {
	Articles []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		PublishedAt string `json:"publishedAt"`
	} `json:"articles"`
}

// feedTooLargeError means the body ran past MaxFeedBytes. The source itself
// may be fine, so it is not counted toward auto-disable.
type feedTooLargeError struct {
	limit int64
}

func (e *feedTooLargeError) Error() string {
	return fmt.Sprintf("feed exceeds %d bytes", e.limit)
}

func (p *Pipeline) fetch(ctx context.Context, client *http.Client, src *types.Source) ([]entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	if src.Kind == types.SourceKindJSON {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxFeedBytes+1))
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > p.cfg.MaxFeedBytes {
		return nil, &feedTooLargeError{limit: p.cfg.MaxFeedBytes}
	}

	var entries []entry
	if src.Kind == types.SourceKindJSON {
		entries, err = parseArticles(body)
	} else {
		entries, err = parseFeed(body)
	}
	if err != nil {
		return nil, err
	}
	if len(entries) > p.cfg.MaxItemsPerSource {
		entries = entries[:p.cfg.MaxItemsPerSource]
	}
	return entries, nil
}

// parseFeed handles RSS, Atom and JSON Feed documents.
func parseFeed(body []byte) ([]entry, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	out := make([]entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		e := entry{
			GUID:    strings.TrimSpace(it.GUID),
			Link:    strings.TrimSpace(it.Link),
			Title:   strings.TrimSpace(it.Title),
			Summary: strings.TrimSpace(it.Description),
		}
		if e.Summary == "" {
			e.Summary = strings.TrimSpace(it.Content)
		}
		switch {
		case it.PublishedParsed != nil:
			e.Published = it.PublishedParsed
		case it.UpdatedParsed != nil:
			e.Published = it.UpdatedParsed
		}
		if e.Title == "" && e.Link == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func parseArticles(body []byte) ([]entry, error) {
	var env articleEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse articles: %w", err)
	}
	out := make([]entry, 0, len(env.Articles))
	for _, a := range env.Articles {
		e := entry{
			Link:    strings.TrimSpace(a.URL),
			Title:   strings.TrimSpace(a.Title),
			Summary: strings.TrimSpace(a.Description),
		}
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(a.PublishedAt)); err == nil {
			e.Published = &ts
		}
		if e.Title == "" && e.Link == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

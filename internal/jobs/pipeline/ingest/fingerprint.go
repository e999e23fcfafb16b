package ingest

import (
	"encoding/hex"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies an entry within its source: the normalized link when
// present, else the GUID, else the lowercased title.
func Fingerprint(link, guid, title string) string {
	var key string
	switch {
	case strings.TrimSpace(link) != "":
		key = "url:" + NormalizeURL(link)
	case strings.TrimSpace(guid) != "":
		key = "guid:" + strings.TrimSpace(guid)
	default:
		key = "title:" + strings.Join(strings.Fields(strings.ToLower(title)), " ")
	}
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NormalizeURL drops fragments, tracking params and trailing slashes and
// lowercases scheme and host. Unparseable input is only trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	q := u.Query()
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
			q.Del(k)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, v := range q[k] {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	u.RawQuery = strings.Join(parts, "&")
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

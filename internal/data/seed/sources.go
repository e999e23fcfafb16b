// Package seed loads the source registry from YAML.
package seed

import (
	_ "embed"
	"fmt"
	"io"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
)

//go:embed sources.yaml
var defaultSources []byte

type yamlSourceFile struct {
	Version int              `yaml:"version"`
	Sources []yamlSourceSpec `yaml:"sources"`
}

type yamlSourceSpec struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`
}

// Default returns the embedded starter registry.
func Default() ([]*types.Source, error) {
	return Parse(defaultSources)
}

func Load(r io.Reader) ([]*types.Source, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}
	return Parse(raw)
}

/*
Parse validates a registry document.
  - url is required, absolute http(s), and unique within the file
  - kind defaults to rss; only rss and json are accepted
  - enabled defaults to true
  - name defaults to the url host
*/
func Parse(raw []byte) ([]*types.Source, error) {
	var doc yamlSourceFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse sources: %w", err)
	}
	seen := make(map[string]bool, len(doc.Sources))
	out := make([]*types.Source, 0, len(doc.Sources))
	for i, entry := range doc.Sources {
		rawURL := strings.TrimSpace(entry.URL)
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("sources[%d]: invalid url %q", i, entry.URL)
		}
		if seen[rawURL] {
			return nil, fmt.Errorf("sources[%d]: duplicate url %q", i, rawURL)
		}
		seen[rawURL] = true

		kind := strings.ToLower(strings.TrimSpace(entry.Kind))
		switch kind {
		case "":
			kind = types.SourceKindRSS
		case types.SourceKindRSS, types.SourceKindJSON:
		default:
			return nil, fmt.Errorf("sources[%d]: unknown kind %q", i, entry.Kind)
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = u.Host
		}
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		out = append(out, &types.Source{Name: name, Kind: kind, URL: rawURL, Enabled: enabled})
	}
	return out, nil
}

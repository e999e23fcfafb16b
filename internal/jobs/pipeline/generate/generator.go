package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/httpx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
	"github.com/yungbote/stancefeed-backend/internal/platform/openai"
)

var ErrInvalidDraft = errors.New("invalid question draft")

type Input struct {
	Topic *types.TopicDraft
	Items []*types.IngestedItem
}

type Draft struct {
	Question  string
	Options   []string
	Rationale string
	Model     string
}

func (d Draft) Validate() error {
	if strings.TrimSpace(d.Question) == "" {
		return fmt.Errorf("%w: empty question", ErrInvalidDraft)
	}
	n := 0
	for _, o := range d.Options {
		if strings.TrimSpace(o) != "" {
			n++
		}
	}
	if n < 2 {
		return fmt.Errorf("%w: need at least 2 options, got %d", ErrInvalidDraft, n)
	}
	return nil
}

type Generator interface {
	Generate(ctx context.Context, in Input) (Draft, error)
}

// Provider builds a Generator bound to the invocation's HTTP client.
type Provider func(client *http.Client, log *logger.Logger) (Generator, error)

// ProviderFor picks the LLM generator when an API key is configured and the
// template generator otherwise.
func ProviderFor(cfg openai.Config) Provider {
	if cfg.Enabled() {
		return OpenAIProvider(cfg)
	}
	return TemplateProvider()
}

func TemplateProvider() Provider {
	return func(*http.Client, *logger.Logger) (Generator, error) { return Template{}, nil }
}

func OpenAIProvider(cfg openai.Config) Provider {
	return func(client *http.Client, log *logger.Logger) (Generator, error) {
		c, err := openai.New(cfg, client, log)
		if err != nil {
			return nil, err
		}
		return &LLM{client: c}, nil
	}
}

// Template is the deterministic fallback used when no model is configured.
type Template struct{}

func (Template) Generate(_ context.Context, in Input) (Draft, error) {
	if in.Topic == nil {
		return Draft{}, fmt.Errorf("%w: missing topic", ErrInvalidDraft)
	}
	kws := in.Topic.KeywordList()
	if len(kws) > 3 {
		kws = kws[:3]
	}
	rationale := fmt.Sprintf("Drawn from %d reports", len(in.Items))
	if len(kws) > 0 {
		rationale += " mentioning " + strings.Join(kws, ", ")
	}
	return Draft{
		Question:  fmt.Sprintf("Where do you stand on: %s?", strings.TrimRight(strings.TrimSpace(in.Topic.Title), "?.!")),
		Options:   []string{"Support", "Oppose", "Undecided"},
		Rationale: rationale + ".",
		Model:     "template",
	}, nil
}

const systemPrompt = `You write neutral stance questions for a civic discussion app.
Given a news topic and recent coverage, produce one question that invites people to
take a side, 2 to 5 mutually exclusive answer options, and a one-sentence rationale
citing the coverage. Never take a side yourself.`

var draftSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"question": map[string]any{"type": "string"},
		"options": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"minItems": 2,
			"maxItems": 5,
		},
		"rationale": map[string]any{"type": "string"},
	},
	"required":             []string{"question", "options", "rationale"},
	"additionalProperties": false,
}

type LLM struct {
	client openai.Client
}

func (g *LLM) Generate(ctx context.Context, in Input) (Draft, error) {
	if in.Topic == nil {
		return Draft{}, fmt.Errorf("%w: missing topic", ErrInvalidDraft)
	}
	obj, err := g.client.GenerateJSON(ctx, systemPrompt, userPrompt(in), "stance_question", draftSchema)
	if err != nil {
		return Draft{}, err
	}
	d := Draft{Model: g.client.Model()}
	d.Question, _ = obj["question"].(string)
	d.Rationale, _ = obj["rationale"].(string)
	if raw, ok := obj["options"].([]any); ok {
		for _, o := range raw {
			if s, ok := o.(string); ok {
				d.Options = append(d.Options, strings.TrimSpace(s))
			}
		}
	}
	d.Question = strings.TrimSpace(d.Question)
	return d, nil
}

func userPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", in.Topic.Title)
	if kw := strings.TrimSpace(in.Topic.Keywords); kw != "" {
		fmt.Fprintf(&b, "Keywords: %s\n", kw)
	}
	b.WriteString("Coverage:\n")
	for _, it := range in.Items {
		fmt.Fprintf(&b, "- %s", it.Title)
		if s := strings.TrimSpace(it.Summary); s != "" {
			fmt.Fprintf(&b, ": %s", httpx.Truncate(s, 280))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

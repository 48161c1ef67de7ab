package source

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgate/internal/normalize"
	"github.com/sells-group/leadgate/pkg/anthropic"
)

const prospectSystemPrompt = `You generate business prospects for a sales team.
Reply with JSON only: an array of objects, or an object with a "prospectos" array.
Each object has the keys negocio, nombre, whatsapp, email, rubro, ciudad and dominio_sugerido.
Use real-looking local businesses. Omit a key rather than inventing a placeholder value.`

// AnthropicConfig configures an LLM prospecting source.
type AnthropicConfig struct {
	Model     string
	MaxTokens int64
	// Prompt is the user's prospecting request.
	Prompt string
	// City is appended to the prompt when set.
	City string
	// Limit, when positive, tells the model how many prospects to return.
	Limit  int
	UserID string
}

// Anthropic asks a Claude model for prospects once, on the first call to
// Next, and then yields the parsed records.
type Anthropic struct {
	client anthropic.Client
	cfg    AnthropicConfig

	fetched bool
	items   []Item
	pos     int
}

// NewAnthropic creates an LLM prospecting source.
func NewAnthropic(client anthropic.Client, cfg AnthropicConfig) *Anthropic {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Anthropic{client: client, cfg: cfg}
}

// Next implements Source.
func (a *Anthropic) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if !a.fetched {
		items, err := a.generate(ctx)
		if err != nil {
			return Item{}, err
		}
		a.items, a.fetched = items, true
	}
	if a.pos >= len(a.items) {
		return Item{}, ErrDone
	}
	it := a.items[a.pos]
	a.pos++
	return it, nil
}

func (a *Anthropic) generate(ctx context.Context) ([]Item, error) {
	prompt := a.cfg.Prompt
	if a.cfg.City != "" {
		prompt += "\nCiudad: " + a.cfg.City
	}
	if a.cfg.Limit > 0 {
		prompt += "\nCantidad: " + strconv.Itoa(a.cfg.Limit)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, eris.New("source: empty prospecting prompt")
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System: []anthropic.SystemBlock{
			{Text: prospectSystemPrompt, CacheTTL: "1h"},
		},
		Messages: []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "source: prospect with %s", a.cfg.Model)
	}
	resp.Usage.LogCost(a.cfg.Model, "prospect")
	if resp.Truncated() {
		zap.L().Warn("source: prospect reply hit max tokens",
			zap.String("model", a.cfg.Model),
			zap.Int64("max_tokens", a.cfg.MaxTokens),
		)
	}

	records, err := ParseProspects(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "source: parse %s response", a.cfg.Model)
	}

	items := make([]Item, 0, len(records))
	for _, r := range records {
		c := normalize.Record(r)
		if c.City == "" {
			c.City = a.cfg.City
		}
		items = append(items, Item{UserID: a.cfg.UserID, Candidate: c})
	}
	zap.L().Info("source: prospects generated",
		zap.String("model", a.cfg.Model),
		zap.Int("count", len(items)),
	)
	return items, nil
}

// ParseProspects decodes an LLM reply holding either a JSON array of
// records or an object with a "prospectos" (or "leads") array. Markdown
// code fences and prose around the JSON are ignored.
func ParseProspects(text string) ([]map[string]any, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, eris.New("source: no json in response")
	}

	var list []map[string]any
	if strings.HasPrefix(body, "[") {
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			return nil, eris.Wrap(err, "source: decode prospect array")
		}
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
		return nil, eris.Wrap(err, "source: decode prospect object")
	}
	for _, key := range []string{"prospectos", "leads", "prospects"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, eris.Wrapf(err, "source: decode %s", key)
		}
		return list, nil
	}
	return nil, eris.New("source: response has no prospect list")
}

// extractJSON strips code fences and returns the outermost JSON array or
// object in text.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return ""
	}
	return text[start : end+1]
}

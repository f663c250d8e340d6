// Package intent classifies a customer message and extracts canonical
// entities, using the language service first and a keyword matcher when
// that service is slow, down or returns something unusable.
package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"retail-chat-workers/internal/chat/genai"
	"retail-chat-workers/internal/common/logger"
	"retail-chat-workers/internal/common/metrics"
	"retail-chat-workers/internal/common/validation"
	"retail-chat-workers/internal/models"
)

var (
	ErrNoJSONObject       = errors.New("no JSON object in reply")
	ErrSchemaMismatch     = errors.New("reply does not match extraction schema")
	ErrUndecodablePayload = errors.New("reply could not be decoded")
)

const systemPrompt = `You classify messages sent to a flower shop chat assistant.
Reply with one JSON object and nothing else:
{"intent": string, "confidence": number 0..1, "entities": {"flowers": [string], "colors": [string], "occasions": [string], "styles": [string], "budget_range": {"min": number, "max": number}, "recipient": string, "urgency": string}, "requires_product_search": bool}
Allowed intents: product_search, price_inquiry, greeting, thanks, order_status, delivery_info, complaint, general_inquiry.
Use English singular words for entity values. Omit entities that are not mentioned.`

var extractionSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"intent", "confidence"},
	"properties": map[string]interface{}{
		"intent":     map[string]interface{}{"type": "string"},
		"confidence": map[string]interface{}{"type": "number"},
		"entities": map[string]interface{}{
			"type": []interface{}{"object", "null"},
			"properties": map[string]interface{}{
				"flowers":   stringList,
				"colors":    stringList,
				"occasions": stringList,
				"styles":    stringList,
				"budget_range": map[string]interface{}{
					"type": []interface{}{"object", "null"},
					"properties": map[string]interface{}{
						"min": map[string]interface{}{"type": []interface{}{"number", "null"}},
						"max": map[string]interface{}{"type": []interface{}{"number", "null"}},
					},
				},
				"recipient": map[string]interface{}{"type": []interface{}{"string", "null"}},
				"urgency":   map[string]interface{}{"type": []interface{}{"string", "null"}},
			},
		},
		"requires_product_search": map[string]interface{}{"type": []interface{}{"boolean", "null"}},
	},
}

var stringList = map[string]interface{}{
	"type":  []interface{}{"array", "null"},
	"items": map[string]interface{}{"type": "string"},
}

type Config struct {
	Timeout      time.Duration
	Temperature  float32
	MaxTokens    int
	HistoryTurns int
}

// Extractor is safe for concurrent use.
type Extractor struct {
	llm    genai.Client
	schema *validation.SchemaValidator
	config Config
	logger logger.Logger
}

// NewExtractor builds an extractor. A nil llm makes every call use the
// keyword matcher.
func NewExtractor(llm genai.Client, cfg Config, log logger.Logger) (*Extractor, error) {
	schema, err := validation.NewSchemaValidator(extractionSchema)
	if err != nil {
		return nil, fmt.Errorf("extraction schema: %w", err)
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 3
	}
	return &Extractor{
		llm:    llm,
		schema: schema,
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "intent"}),
	}, nil
}

// Classify never fails: any language service problem yields the keyword
// result with Source set to keyword.
func (e *Extractor) Classify(ctx context.Context, text string, conv *models.ConversationContext) models.IntentResult {
	lang := DetectLanguage(text)
	if lang == "" {
		lang = LangEnglish
		if conv != nil && conv.Language != "" {
			lang = conv.Language
		}
	}

	if e.llm == nil {
		return e.fallback(text, lang, conv)
	}

	callCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	raw, err := e.llm.Generate(callCtx, genai.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(text, conv, e.config.HistoryTurns),
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
		JSON:        true,
	})
	if err != nil {
		e.logger.Warn("language service unavailable, using keyword matcher", map[string]interface{}{
			"error":   err.Error(),
			"timeout": errors.Is(err, genai.ErrLLMTimeout),
		})
		return e.fallback(text, lang, conv)
	}

	switch out := e.decode(raw).(type) {
	case parsed:
		res := out.toResult(text)
		res.Language = lang
		return res
	case malformed:
		e.logger.Warn("unusable extraction reply, using keyword matcher", map[string]interface{}{
			"error":  out.reason.Error(),
			"rawLen": len(out.raw),
		})
	}
	return e.fallback(text, lang, conv)
}

func (e *Extractor) fallback(text, lang string, conv *models.ConversationContext) models.IntentResult {
	metrics.ChatFallbacks.WithLabelValues("intent").Inc()
	res := KeywordClassify(text)
	res.Language = lang

	// a bare follow-up ("something cheaper?") continues a product search
	if res.Label == models.IntentGeneralInquiry {
		if last := conv.LastTurn(); last != nil && last.Intent == models.IntentProductSearch && !res.Entities.IsEmpty() {
			res.Label = models.IntentProductSearch
			res.RequiresProductSearch = true
		}
	}
	return res
}

// extraction is either parsed or malformed.
type extraction interface {
	isExtraction()
}

type parsed struct {
	payload payload
}

type malformed struct {
	raw    string
	reason error
}

func (parsed) isExtraction()    {}
func (malformed) isExtraction() {}

type payload struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Entities   *struct {
		Flowers     []string `json:"flowers"`
		Colors      []string `json:"colors"`
		Occasions   []string `json:"occasions"`
		Styles      []string `json:"styles"`
		BudgetRange *struct {
			Min *float64 `json:"min"`
			Max *float64 `json:"max"`
		} `json:"budget_range"`
		Recipient *string `json:"recipient"`
		Urgency   *string `json:"urgency"`
	} `json:"entities"`
	RequiresProductSearch *bool `json:"requires_product_search"`
}

func (e *Extractor) decode(raw string) extraction {
	body, ok := Unwrap(raw)
	if !ok {
		return malformed{raw: raw, reason: ErrNoJSONObject}
	}
	if res := e.schema.ValidateJSON([]byte(body)); !res.Valid {
		return malformed{raw: raw, reason: fmt.Errorf("%w: %s", ErrSchemaMismatch, res.Error())}
	}
	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return malformed{raw: raw, reason: fmt.Errorf("%w: %v", ErrUndecodablePayload, err)}
	}
	return parsed{payload: p}
}

// Unwrap strips code fences and any prose around the outermost JSON object.
func Unwrap(raw string) (string, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff"))
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.Contains(s[:nl], "{") {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func (p parsed) toResult(text string) models.IntentResult {
	label := strings.ToLower(strings.TrimSpace(p.payload.Intent))
	if !models.KnownIntents[label] {
		label = models.IntentGeneralInquiry
	}

	var ent models.Entities
	if pe := p.payload.Entities; pe != nil {
		ent.Flowers = CanonicalizeAll(ClassFlower, pe.Flowers)
		ent.Colors = CanonicalizeAll(ClassColor, pe.Colors)
		ent.Occasions = CanonicalizeAll(ClassOccasion, pe.Occasions)
		ent.Styles = CanonicalizeAll(ClassStyle, pe.Styles)
		if br := pe.BudgetRange; br != nil && (validAmount(br.Min) || validAmount(br.Max)) {
			b := &models.BudgetRange{}
			if validAmount(br.Min) {
				b.Min = br.Min
			}
			if validAmount(br.Max) {
				b.Max = br.Max
			}
			ent.Budget = b.Normalized()
		}
		if pe.Recipient != nil {
			ent.Recipient = strings.ToLower(strings.TrimSpace(*pe.Recipient))
		}
		if pe.Urgency != nil {
			ent.Urgency = strings.ToLower(strings.TrimSpace(*pe.Urgency))
		}
	}
	// the service misses budgets written in local formats
	if ent.Budget == nil {
		ent.Budget = ExtractBudget(text)
	}

	requires := requiresSearch(label, ent)
	if p.payload.RequiresProductSearch != nil {
		requires = *p.payload.RequiresProductSearch
	}

	return models.IntentResult{
		Label:                 label,
		Confidence:            clamp01(p.payload.Confidence),
		Entities:              ent,
		RequiresProductSearch: requires,
		Source:                models.SourceLanguageService,
	}
}

func buildPrompt(text string, conv *models.ConversationContext, turns int) string {
	var b strings.Builder
	if conv != nil {
		if recent := conv.Recent(turns); len(recent) > 0 {
			b.WriteString("Recent conversation:\n")
			for _, t := range recent {
				fmt.Fprintf(&b, "customer: %s\nassistant: %s\n", t.UserMessage, t.Reply)
			}
		}
		if prefs, err := json.Marshal(conv.Preferences); err == nil && string(prefs) != "{}" {
			fmt.Fprintf(&b, "Known preferences: %s\n", prefs)
		}
	}
	fmt.Fprintf(&b, "Message: %s", text)
	return b.String()
}

func validAmount(v *float64) bool {
	return v != nil && *v > 0 && !math.IsInf(*v, 0) && !math.IsNaN(*v)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package orchestrator

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-chat-workers/internal/models"
)

func fp(v float64) *float64 { return &v }

func TestBuildFilter(t *testing.T) {
	tests := []struct {
		name     string
		entities models.Entities
		want     *models.SearchFilter
	}{
		{"empty", models.Entities{}, nil},
		{"recipient only", models.Entities{Recipient: "wife"}, nil},
		{"single flower and color", models.Entities{Flowers: []string{"rose"}, Colors: []string{"red"}},
			&models.SearchFilter{Category: "rose", Color: "red"}},
		{"several flowers", models.Entities{Flowers: []string{"rose", "lily"}}, nil},
		{"inverted budget", models.Entities{Budget: &models.BudgetRange{Min: fp(800), Max: fp(300)}},
			&models.SearchFilter{PriceMin: fp(300), PriceMax: fp(800)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildFilter(tt.entities))
		})
	}
}

func TestBuildQuery(t *testing.T) {
	e := models.Entities{Flowers: []string{"rose"}, Colors: []string{"red"}, Occasions: []string{"get_well"}}
	assert.Equal(t, "rose red get well", BuildQuery(e, "ignored"))
	assert.Equal(t, "something nice", BuildQuery(models.Entities{}, "  something nice "))
}

func TestEffectiveEntities(t *testing.T) {
	conv := models.NewConversationContext("u-1")
	conv.Preferences = models.Preferences{
		Flowers:   []string{"tulip"},
		Colors:    []string{"yellow"},
		Budget:    &models.BudgetRange{Max: fp(600)},
		Recipient: "mother",
	}

	got := EffectiveEntities(models.Entities{Colors: []string{"pink"}}, conv)

	assert.Equal(t, []string{"tulip"}, got.Flowers)
	assert.Equal(t, []string{"pink"}, got.Colors)
	require.NotNil(t, got.Budget)
	assert.Equal(t, 600.0, *got.Budget.Max)
	assert.Equal(t, "mother", got.Recipient)

	assert.Equal(t, models.Entities{Flowers: []string{"rose"}}, EffectiveEntities(models.Entities{Flowers: []string{"rose"}}, nil))
}

func TestTemplatedReply(t *testing.T) {
	recs := []models.Recommendation{
		{Product: models.ProductHit{Name: "Red Rose Bouquet", Price: 450, Available: true}, Reason: "rose, red"},
		{Product: models.ProductHit{Name: "Peony Jar", Price: 512.5}, IsAlternative: true},
	}

	tests := []struct {
		name     string
		lang     string
		intent   string
		hint     string
		recs     []models.Recommendation
		searched bool
		contains []string
	}{
		{"list", "en", models.IntentProductSearch, "", recs, true,
			[]string{"1. Red Rose Bouquet - 450 (rose, red)", "2. Peony Jar - 512.50 (similar option; currently unavailable)"}},
		{"markdown", "en", models.IntentProductSearch, "markdown", recs[:1], true, []string{"**Red Rose Bouquet**"}},
		{"no match", "en", models.IntentProductSearch, "", nil, true, []string{canned("en", replyNoMatch)}},
		{"apology", "th", models.IntentProductSearch, "", nil, false, []string{canned("th", replyApology)}},
		{"per intent", "es", models.IntentThanks, "", nil, false, []string{canned("es", models.IntentThanks)}},
		{"unknown language", "fr", models.IntentGreeting, "", nil, false, []string{canned("en", models.IntentGreeting)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := templatedReply(tt.lang, tt.intent, tt.hint, tt.recs, tt.searched)
			require.NotEmpty(t, got)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
		})
	}
}

func TestSanitizeReply(t *testing.T) {
	assert.Equal(t, "Hello there.", sanitizeReply("```text\nHello there.\n```", 0))
	assert.Equal(t, "a\n\nb", sanitizeReply("a\n\n\n\nb", 0))

	long := strings.Repeat("Roses are red. ", 20)
	got := sanitizeReply(long, 50)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 50)
	assert.True(t, strings.HasSuffix(got, "."))
}

func TestReplyPrompt(t *testing.T) {
	conv := models.NewConversationContext("u-1")
	conv.AppendTurn(models.Turn{UserMessage: "hi", Reply: "Hello!"}, 3)
	msg := models.InboundMessage{UserID: "u-1", Text: "red roses", FormatHint: "markdown"}
	ir := models.IntentResult{Label: models.IntentProductSearch, Entities: models.Entities{Flowers: []string{"rose"}}}
	recs := []models.Recommendation{{Product: models.ProductHit{Name: "Red Rose Bouquet", Price: 450}}}

	p := replyPrompt(msg, ir, recs, conv, 3)

	assert.Contains(t, p, "customer: hi\nassistant: Hello!")
	assert.Contains(t, p, `"name":"Red Rose Bouquet"`)
	assert.Contains(t, p, "bold markdown")
	assert.True(t, strings.HasSuffix(p, "Customer message: red roses"))
	assert.Contains(t, replySystem("th"), "Thai")
	assert.Contains(t, replySystem("xx"), "English")
}

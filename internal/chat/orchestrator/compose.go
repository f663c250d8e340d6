package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"retail-chat-workers/internal/models"
)

var languageNames = map[string]string{"en": "English", "th": "Thai", "es": "Spanish"}

const replySystemPrompt = `You are the chat assistant of a flower shop.
Answer in %s, in at most 5 short sentences, warm and concise.
Only recommend products from the list you are given, with their exact names and prices. Never invent products, prices or order details.
If the list is empty, ask one short question about flowers, colors, occasion or budget.`

// EffectiveEntities fills every entity class the message left empty from
// the stored preferences.
func EffectiveEntities(e models.Entities, conv *models.ConversationContext) models.Entities {
	if conv == nil {
		return e
	}
	p := conv.Preferences
	if len(e.Flowers) == 0 {
		e.Flowers = p.Flowers
	}
	if len(e.Colors) == 0 {
		e.Colors = p.Colors
	}
	if len(e.Occasions) == 0 {
		e.Occasions = p.Occasions
	}
	if len(e.Styles) == 0 {
		e.Styles = p.Styles
	}
	if e.Budget == nil {
		e.Budget = p.Budget
	}
	if e.Recipient == "" {
		e.Recipient = p.Recipient
	}
	return e
}

// BuildQuery joins the canonical entities into a search query, falling
// back to the raw text when nothing was extracted.
func BuildQuery(e models.Entities, text string) string {
	var parts []string
	parts = append(parts, e.Flowers...)
	parts = append(parts, e.Colors...)
	for _, o := range e.Occasions {
		parts = append(parts, strings.ReplaceAll(o, "_", " "))
	}
	parts = append(parts, e.Styles...)
	if len(parts) == 0 {
		return strings.TrimSpace(text)
	}
	return strings.Join(parts, " ")
}

// BuildFilter derives the price window and, when unambiguous, the flower
// and color predicates. Inverted budgets are swapped.
func BuildFilter(e models.Entities) *models.SearchFilter {
	f := &models.SearchFilter{}
	if b := e.Budget.Normalized(); b != nil {
		f.PriceMin, f.PriceMax = b.Min, b.Max
	}
	if len(e.Flowers) == 1 {
		f.Category = e.Flowers[0]
	}
	if len(e.Colors) == 1 {
		f.Color = e.Colors[0]
	}
	if !f.HasPriceRange() && f.Category == "" && f.Color == "" {
		return nil
	}
	return f
}

func replySystem(lang string) string {
	name, ok := languageNames[lang]
	if !ok {
		name = languageNames["en"]
	}
	return fmt.Sprintf(replySystemPrompt, name)
}

type promptProduct struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Reason      string  `json:"reason"`
	Available   bool    `json:"available"`
	Alternative bool    `json:"alternative,omitempty"`
}

// replyPrompt bundles the message, intent, recommendations and a condensed
// view of the conversation.
func replyPrompt(msg models.InboundMessage, ir models.IntentResult, recs []models.Recommendation, conv *models.ConversationContext, historyTurns int) string {
	var b strings.Builder

	if conv != nil {
		if recent := conv.Recent(historyTurns); len(recent) > 0 {
			b.WriteString("Conversation so far:\n")
			for _, t := range recent {
				fmt.Fprintf(&b, "customer: %s\nassistant: %s\n", t.UserMessage, truncateRunes(t.Reply, 200))
			}
		}
	}

	entities, _ := json.Marshal(ir.Entities)
	fmt.Fprintf(&b, "Intent: %s\nEntities: %s\n", ir.Label, entities)

	products := make([]promptProduct, 0, len(recs))
	for _, r := range recs {
		products = append(products, promptProduct{
			Name:        r.Product.Name,
			Price:       r.Product.Price,
			Reason:      r.Reason,
			Available:   r.Product.Available,
			Alternative: r.IsAlternative,
		})
	}
	list, _ := json.Marshal(products)
	fmt.Fprintf(&b, "Products: %s\n", list)
	if msg.FormatHint == "markdown" {
		b.WriteString("Format product names in bold markdown.\n")
	}
	fmt.Fprintf(&b, "Customer message: %s", msg.Text)
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(v float64) *float64 { return &v }

func TestBudgetRange(t *testing.T) {
	tests := []struct {
		name      string
		budget    *BudgetRange
		price     float64
		contained bool
		under     bool
	}{
		{"nil budget", nil, 100, false, false},
		{"max only inside", &BudgetRange{Max: price(500)}, 450, true, false},
		{"max only above", &BudgetRange{Max: price(500)}, 650, false, false},
		{"range inside", &BudgetRange{Min: price(400), Max: price(600)}, 500, true, false},
		{"range under", &BudgetRange{Min: price(400), Max: price(600)}, 300, false, true},
		{"empty bounds", &BudgetRange{}, 300, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.contained, tt.budget.Contains(tt.price))
			assert.Equal(t, tt.under, tt.budget.Under(tt.price))
		})
	}
}

func TestBudgetRange_NormalizedSwapsInvertedBounds(t *testing.T) {
	b := (&BudgetRange{Min: price(900), Max: price(300)}).Normalized()
	assert.Equal(t, 300.0, *b.Min)
	assert.Equal(t, 900.0, *b.Max)
	assert.Nil(t, (*BudgetRange)(nil).Normalized())
}

func TestSearchFilter_Validate(t *testing.T) {
	assert.NoError(t, (*SearchFilter)(nil).Validate())
	assert.NoError(t, (&SearchFilter{PriceMin: price(1), PriceMax: price(1)}).Validate())
	assert.ErrorIs(t, (&SearchFilter{PriceMin: price(2), PriceMax: price(1)}).Validate(), ErrInvertedPriceRange)
}

func TestSearchFilter_Matches(t *testing.T) {
	hit := ProductHit{Price: 450, Category: "bouquet", Flowers: []string{"rose"}, Colors: []string{"red"}}

	assert.True(t, (&SearchFilter{PriceMax: price(500), Color: "red"}).Matches(hit))
	assert.True(t, (&SearchFilter{Category: "rose"}).Matches(hit))
	assert.False(t, (&SearchFilter{PriceMax: price(400)}).Matches(hit))
	assert.False(t, (&SearchFilter{Color: "white"}).Matches(hit))
	assert.False(t, (&SearchFilter{Category: "orchid"}).Matches(hit))
}

func TestConversationContext_AppendTurnTrimsAndOrders(t *testing.T) {
	ctx := NewConversationContext("u-1")
	base := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ctx.AppendTurn(Turn{UserMessage: string(rune('a' + i)), Timestamp: base.Add(time.Duration(i) * time.Minute)}, 3)
	}
	// late arrival with an older timestamp lands before newer turns
	ctx.AppendTurn(Turn{UserMessage: "late", Timestamp: base.Add(150 * time.Second)}, 3)

	require.Len(t, ctx.MessageHistory, 3)
	assert.Equal(t, "d", ctx.MessageHistory[1].UserMessage)
	assert.Equal(t, "e", ctx.LastTurn().UserMessage)
	assert.Equal(t, base.Add(4*time.Minute), ctx.LastUpdated)
}

func TestPreferences_Merge(t *testing.T) {
	var p Preferences
	p.Merge(Entities{Colors: []string{"red", "white"}, Budget: &BudgetRange{Max: price(500)}})
	p.Merge(Entities{Colors: []string{"red"}, Occasions: []string{"anniversary"}, Recipient: "wife"})

	assert.Equal(t, []string{"white", "red"}, p.Colors)
	assert.Equal(t, []string{"anniversary"}, p.Occasions)
	assert.Equal(t, 500.0, *p.Budget.Max)
	assert.Equal(t, "wife", p.Recipient)

	e := p.AsEntities()
	assert.Equal(t, p.Colors, e.Colors)
	assert.False(t, e.IsEmpty())
}

func TestMergeValues_CapsLength(t *testing.T) {
	var values []string
	for i := 0; i < 15; i++ {
		values = mergeValues(values, []string{string(rune('a' + i))})
	}
	assert.Len(t, values, maxPreferenceValues)
	assert.Equal(t, "o", values[len(values)-1])
}

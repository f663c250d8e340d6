package models

// Intent labels produced by the extractor.
const (
	IntentProductSearch  = "product_search"
	IntentPriceInquiry   = "price_inquiry"
	IntentGreeting       = "greeting"
	IntentThanks         = "thanks"
	IntentOrderStatus    = "order_status"
	IntentDeliveryInfo   = "delivery_info"
	IntentComplaint      = "complaint"
	IntentGeneralInquiry = "general_inquiry"
)

// KnownIntents lists every label the pipeline understands.
var KnownIntents = map[string]bool{
	IntentProductSearch:  true,
	IntentPriceInquiry:   true,
	IntentGreeting:       true,
	IntentThanks:         true,
	IntentOrderStatus:    true,
	IntentDeliveryInfo:   true,
	IntentComplaint:      true,
	IntentGeneralInquiry: true,
}

// Extraction sources.
const (
	SourceLanguageService = "language_service"
	SourceKeyword         = "keyword"
)

// BudgetRange is an optional price window. Either bound may be absent.
type BudgetRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether price lies inside every bound that is set.
func (b *BudgetRange) Contains(price float64) bool {
	if b == nil {
		return false
	}
	if b.Min != nil && price < *b.Min {
		return false
	}
	if b.Max != nil && price > *b.Max {
		return false
	}
	return b.Min != nil || b.Max != nil
}

// Under reports whether price is below the lower bound.
func (b *BudgetRange) Under(price float64) bool {
	return b != nil && b.Min != nil && price < *b.Min
}

// Normalized returns a copy with min <= max, swapping inverted bounds.
func (b *BudgetRange) Normalized() *BudgetRange {
	if b == nil {
		return nil
	}
	out := &BudgetRange{Min: b.Min, Max: b.Max}
	if out.Min != nil && out.Max != nil && *out.Min > *out.Max {
		out.Min, out.Max = out.Max, out.Min
	}
	return out
}

// Entities holds canonical tokens extracted from a message.
type Entities struct {
	Flowers   []string     `json:"flowers,omitempty"`
	Colors    []string     `json:"colors,omitempty"`
	Occasions []string     `json:"occasions,omitempty"`
	Styles    []string     `json:"styles,omitempty"`
	Budget    *BudgetRange `json:"budgetRange,omitempty"`
	Recipient string       `json:"recipient,omitempty"`
	Urgency   string       `json:"urgency,omitempty"`
}

// IsEmpty reports whether no entity was extracted.
func (e Entities) IsEmpty() bool {
	return len(e.Flowers) == 0 && len(e.Colors) == 0 && len(e.Occasions) == 0 &&
		len(e.Styles) == 0 && e.Budget == nil && e.Recipient == "" && e.Urgency == ""
}

// IntentResult is the extractor output for one message.
type IntentResult struct {
	Label                 string   `json:"intent"`
	Confidence            float64  `json:"confidence"`
	Entities              Entities `json:"entities"`
	Language              string   `json:"language"`
	RequiresProductSearch bool     `json:"requiresProductSearch"`
	Source                string   `json:"source"`
}

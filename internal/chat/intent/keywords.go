package intent

import (
	"regexp"
	"strconv"
	"strings"

	"retail-chat-workers/internal/models"
)

// KeywordConfidence is reported for every keyword-matched result.
const KeywordConfidence = 0.5

const number = `(\d{1,3}(?:,\d{3})+|\d+)(?:\.\d+)?`

var (
	currency = `(?:฿|\$|€|thb\s*|baht\s*|บาท\s*)?`

	budgetRangeRe  = regexp.MustCompile(`(?i)` + currency + `(` + number + `)(\s*)` + currency + `(-|–|\bto\b|\band\b|ถึง|และ|\bhasta\b|\by\b|\ba\b)(\s*)` + currency + `(` + number + `)`)
	budgetMaxRe    = regexp.MustCompile(`(?i)(?:under|below|less than|cheaper than|max(?:imum)?|up to|no more than|within|budget(?: of| is)?|ไม่เกิน|ต่ำกว่า|น้อยกว่า|งบ|menos de|máximo|maximo|hasta)\s*` + currency + `(` + number + `)`)
	budgetMinRe    = regexp.MustCompile(`(?i)(?:over|above|more than|at least|más de|mas de|mínimo|minimo|อย่างน้อย|มากกว่า)\s*` + currency + `(` + number + `)`)
	budgetMinPost  = regexp.MustCompile(`(` + number + `)\s*(?:บาท|baht)?\s*ขึ้นไป`)
	budgetAroundRe = regexp.MustCompile(`(?i)(?:around|about|approximately|roughly|ประมาณ|alrededor de|unos)\s*` + currency + `(` + number + `)`)

	// A number range is only a budget next to one of these.
	rangeCurrencyRe = regexp.MustCompile(`(?i)฿|\$|€|\bthb\b|\bbaht\b|บาท`)
	rangeUnitAfter  = regexp.MustCompile(`(?i)^\s*(?:฿|\$|€|บาท|(?:thb|baht|usd|dollars?|pesos?|euros?)\b)`)
	rangeKeywordRe  = regexp.MustCompile(`(?i)(?:\bbudget|\bbetween|\bfrom|\bprice[sd]?|\brange|\bcosts?|\bspend|\bentre|\bpresupuesto|\bprecio|งบ(?:ประมาณ)?|ราคา|ระหว่าง)(?:\s+(?:of|is|around|about|de|es))?\s*:?\s*$`)
	rangeNounAfter  = regexp.MustCompile(`(?i)^\s*(?:\pL+\s+)?(?:roses?|stems?|flowers?|tulips?|lil(?:y|ies)|bouquets?|bunch(?:es)?|pieces?|pcs|ramos?|rosas?|flores?|tallos?|ดอก|ช่อ|ก้าน)`)
)

var recipientPatterns = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:wife)\b|ให้ภรรยา|ให้เมีย|para mi esposa\b`), "wife"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:husband)\b|ให้สามี|ให้ผัว|para mi esposo\b`), "husband"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:mom|mum|mother)\b|ให้แม่|para mi (?:mamá|mama\b|madre\b)`), "mother"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:dad|father)\b|ให้พ่อ|para mi (?:papá|papa\b|padre\b)`), "father"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:girlfriend|boyfriend|partner)\b|ให้แฟน|para mi (?:novia|novio|pareja)\b`), "partner"},
	{regexp.MustCompile(`(?i)\b(?:for|to) (?:my|a) (?:friend|best friend|bff)\b|ให้เพื่อน|para (?:mi|un|una) (?:amigo|amiga)\b`), "friend"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:boss|manager)\b|ให้หัวหน้า|ให้เจ้านาย|para mi jefe\b`), "boss"},
	{regexp.MustCompile(`(?i)\b(?:for|to) (?:my|a) (?:colleague|coworker|co-worker)\b|ให้เพื่อนร่วมงาน|para (?:mi|un|una) (?:colega|compañero|compañera)\b`), "colleague"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:sister)\b|ให้พี่สาว|ให้น้องสาว|para mi hermana\b`), "sister"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:brother)\b|ให้พี่ชาย|ให้น้องชาย|para mi hermano\b`), "brother"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:grandma|grandmother)\b|ให้ยาย|ให้ย่า|para mi abuela\b`), "grandmother"},
	{regexp.MustCompile(`(?i)\b(?:for|to) my (?:teacher)\b|ให้ครู|ให้อาจารย์|para mi (?:maestra|maestro|profesora|profesor)\b`), "teacher"},
}

var urgencyPatterns = []struct {
	re        *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\b(?:asap|urgent|urgently|right away|immediately|right now)\b|ด่วน|urgente`), "urgent"},
	{regexp.MustCompile(`(?i)\b(?:today|tonight|same[- ]day|this evening)\b|วันนี้|คืนนี้|\bhoy\b|esta noche`), "today"},
	{regexp.MustCompile(`(?i)\btomorrow\b|พรุ่งนี้|\bmañana\b`), "tomorrow"},
}

// Ordered from most to least specific; the first rule that fires wins.
var intentRules = []struct {
	label string
	re    *regexp.Regexp
}{
	{models.IntentComplaint, regexp.MustCompile(`(?i)\b(?:complain|complaint|refund|wilted|wilting|dead flowers|damaged|broken|terrible|awful|disappointed|never arrived|wrong (?:order|flowers|item))\b|ร้องเรียน|เหี่ยว|เสียหาย|ผิดหวัง|คืนเงิน|\b(?:queja|reembolso|marchitas|dañado|dañadas)\b`)},
	{models.IntentOrderStatus, regexp.MustCompile(`(?i)\b(?:order status|my order|track(?:ing)?|where is my|order number|order #)\b|สถานะ|ออเดอร์|คำสั่งซื้อ|\b(?:mi pedido|estado del pedido|rastrear)\b`)},
	{models.IntentDeliveryInfo, regexp.MustCompile(`(?i)\b(?:deliver|delivery|deliveries|shipping|ship|courier|delivery fee)\b|จัดส่ง|ส่งถึง|ค่าส่ง|\b(?:envío|envio|entrega|enviar a domicilio)\b`)},
	{models.IntentPriceInquiry, regexp.MustCompile(`(?i)\b(?:how much|price|prices|cost|costs|pricing)\b|ราคา|เท่าไหร่|เท่าไร|\b(?:cuánto|cuanto|precio|precios|cuesta)\b`)},
	{models.IntentProductSearch, regexp.MustCompile(`(?i)\b(?:buy|looking for|look for|want|need|recommend|suggest|bouquet|bouquets|flowers|arrangement|order some|send|gift|cheaper|another|something)\b|ต้องการ|อยากได้|ดอกไม้|ช่อ|แนะนำ|ของขวัญ|\b(?:quiero|busco|necesito|ramo|ramos|flores|regalo|recomienda|recomiendas)\b`)},
	{models.IntentThanks, regexp.MustCompile(`(?i)\b(?:thanks|thank you|thx|appreciate it)\b|ขอบคุณ|ขอบใจ|\b(?:gracias|muchas gracias)\b`)},
	{models.IntentGreeting, regexp.MustCompile(`(?i)^\s*(?:hi|hello|hey|good (?:morning|afternoon|evening)|yo)\b|สวัสดี|^\s*(?:hola|buenos días|buenos dias|buenas tardes|buenas noches|buenas)\b`)},
}

// KeywordClassify is the deterministic fallback matcher. It never fails.
func KeywordClassify(text string) models.IntentResult {
	entities := ExtractEntities(text)

	label := models.IntentGeneralInquiry
	for _, rule := range intentRules {
		if rule.re.MatchString(text) {
			label = rule.label
			break
		}
	}
	if label == models.IntentGeneralInquiry || label == models.IntentGreeting || label == models.IntentThanks {
		if len(entities.Flowers) > 0 || len(entities.Occasions) > 0 || (len(entities.Colors) > 0 && entities.Budget != nil) {
			label = models.IntentProductSearch
		}
	}

	return models.IntentResult{
		Label:                 label,
		Confidence:            KeywordConfidence,
		Entities:              entities,
		Language:              DetectLanguage(text),
		RequiresProductSearch: requiresSearch(label, entities),
		Source:                models.SourceKeyword,
	}
}

// ExtractEntities runs the synonym tables and the budget, recipient and
// urgency patterns over text.
func ExtractEntities(text string) models.Entities {
	e := models.Entities{
		Flowers:   Find(ClassFlower, text),
		Colors:    Find(ClassColor, text),
		Occasions: Find(ClassOccasion, text),
		Styles:    Find(ClassStyle, text),
		Budget:    ExtractBudget(text),
	}
	for _, p := range recipientPatterns {
		if p.re.MatchString(text) {
			e.Recipient = p.canonical
			break
		}
	}
	for _, p := range urgencyPatterns {
		if p.re.MatchString(text) {
			e.Urgency = p.canonical
			break
		}
	}
	return e
}

// ExtractBudget recognises explicit ranges, caps, floors and "around X"
// (+/-20%). A stated cap outside the range wins over the range. The
// returned range is always normalized.
func ExtractBudget(text string) *models.BudgetRange {
	capLoc := budgetMaxRe.FindStringSubmatchIndex(text)
	if lo, hi, loc, ok := findBudgetRange(text); ok {
		if capLoc == nil || (capLoc[0] < loc[1] && loc[0] < capLoc[1]) {
			return (&models.BudgetRange{Min: &lo, Max: &hi}).Normalized()
		}
	}

	var b models.BudgetRange
	if capLoc != nil {
		if v, ok := parseAmount(text[capLoc[2]:capLoc[3]]); ok {
			b.Max = &v
		}
	}
	if m := budgetMinRe.FindStringSubmatchIndex(text); m != nil {
		// "no more than X" is a cap, not a floor.
		if capLoc == nil || m[1] <= capLoc[0] || capLoc[1] <= m[0] {
			if v, ok := parseAmount(text[m[2]:m[3]]); ok {
				b.Min = &v
			}
		}
	} else if m := budgetMinPost.FindStringSubmatch(text); m != nil {
		if v, ok := parseAmount(m[1]); ok {
			b.Min = &v
		}
	}
	if b.Min == nil && b.Max == nil {
		if m := budgetAroundRe.FindStringSubmatch(text); m != nil {
			if v, ok := parseAmount(m[1]); ok {
				lo, hi := v*0.8, v*1.2
				b.Min, b.Max = &lo, &hi
			}
		}
	}
	if b.Min == nil && b.Max == nil {
		return nil
	}
	return b.Normalized()
}

// findBudgetRange returns the first number range that reads as a price:
// one carrying a currency marker or introduced by a budget word, and neither
// a quantity ("10 to 12 roses") nor a day-month date ("14-2").
func findBudgetRange(text string) (lo, hi float64, loc []int, ok bool) {
	for _, m := range budgetRangeRe.FindAllStringSubmatchIndex(text, -1) {
		match, after := text[m[0]:m[1]], text[m[1]:]
		first, second := text[m[2]:m[3]], text[m[12]:m[13]]
		conn := text[m[8]:m[9]]
		if rangeNounAfter.MatchString(after) {
			continue
		}
		marked := rangeCurrencyRe.MatchString(match) || rangeUnitAfter.MatchString(after)
		if !marked && isDayMonth(first, second, conn, m[6] == m[7] && m[10] == m[11]) {
			continue
		}
		if !marked && !rangeKeywordRe.MatchString(text[:m[0]]) {
			continue
		}
		a, okA := parseAmount(first)
		b, okB := parseAmount(second)
		if okA && okB {
			return a, b, m[:2], true
		}
	}
	return 0, 0, nil, false
}

// isDayMonth reports a tight "d-d" or "dd-dd" form.
func isDayMonth(first, second, conn string, tight bool) bool {
	if !tight || (conn != "-" && conn != "–") {
		return false
	}
	return len(first) <= 2 && len(second) <= 2
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func requiresSearch(label string, e models.Entities) bool {
	switch label {
	case models.IntentProductSearch, models.IntentPriceInquiry:
		return true
	case models.IntentOrderStatus, models.IntentDeliveryInfo, models.IntentComplaint:
		return false
	}
	return len(e.Flowers) > 0 || len(e.Occasions) > 0
}

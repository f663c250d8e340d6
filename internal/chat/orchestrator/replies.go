package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"retail-chat-workers/internal/models"
)

const (
	replyRefusal     = "refusal"
	replyThrottled   = "throttled"
	replyInvalid     = "invalid"
	replyApology     = "apology"
	replyNoMatch     = "no_match"
	replyIntro       = "intro"
	replyAlternative = "alternative"
	replyUnavailable = "unavailable"
	replyGeneral     = "general"
)

var cannedReplies = map[string]map[string]string{
	"en": {
		replyRefusal:              "Sorry, I can't help with that. I'm happy to help you find flowers or answer questions about your order.",
		replyThrottled:            "You're sending messages a little too quickly. Please wait a moment and try again.",
		replyInvalid:              "Sorry, I couldn't read that message. Could you rephrase it in a shorter message?",
		replyApology:              "Sorry, I'm having trouble right now. Please try again in a moment, or tell me which flowers you're looking for.",
		replyNoMatch:              "I couldn't find a match for that right now. Could you tell me a bit more about the flowers, colors or budget you have in mind?",
		replyIntro:                "Here are some options you might like:",
		replyAlternative:          "similar option",
		replyUnavailable:          "currently unavailable",
		replyGeneral:              "I can help you choose flowers, check prices and answer delivery questions. What are you looking for?",
		models.IntentGreeting:     "Hello! Looking for flowers for someone special? Tell me the occasion, colors or budget.",
		models.IntentThanks:       "You're welcome! Let me know if there's anything else I can help with.",
		models.IntentOrderStatus:  "I can't look up orders at the moment. Please share your order number and our team will get back to you shortly.",
		models.IntentDeliveryInfo: "We deliver most days. Tell me the delivery area and date and I'll check what's possible.",
		models.IntentComplaint:    "I'm really sorry about that. Please share your order number and a photo if you can, and our team will make it right.",
	},
	"th": {
		replyRefusal:              "ขออภัยค่ะ ไม่สามารถช่วยเรื่องนี้ได้ ยินดีช่วยเลือกดอกไม้หรือตอบคำถามเกี่ยวกับคำสั่งซื้อค่ะ",
		replyThrottled:            "ส่งข้อความเร็วเกินไปค่ะ กรุณารอสักครู่แล้วลองใหม่อีกครั้ง",
		replyInvalid:              "ขออภัยค่ะ ไม่สามารถอ่านข้อความนี้ได้ รบกวนพิมพ์ใหม่ให้สั้นลงนะคะ",
		replyApology:              "ขออภัยค่ะ ระบบขัดข้องชั่วคราว กรุณาลองใหม่อีกครั้ง หรือบอกได้เลยว่าต้องการดอกไม้แบบไหนค่ะ",
		replyNoMatch:              "ตอนนี้ยังไม่พบสินค้าที่ตรงกันค่ะ รบกวนบอกชนิดดอกไม้ สี หรืองบประมาณเพิ่มเติมได้ไหมคะ",
		replyIntro:                "แนะนำตัวเลือกเหล่านี้ค่ะ:",
		replyAlternative:          "ตัวเลือกใกล้เคียง",
		replyUnavailable:          "สินค้าหมดชั่วคราว",
		replyGeneral:              "ยินดีช่วยเลือกดอกไม้ เช็กราคา และตอบคำถามเรื่องการจัดส่งค่ะ กำลังมองหาอะไรอยู่คะ",
		models.IntentGreeting:     "สวัสดีค่ะ กำลังมองหาดอกไม้ให้คนพิเศษอยู่หรือเปล่าคะ บอกโอกาส สี หรืองบประมาณได้เลยค่ะ",
		models.IntentThanks:       "ยินดีค่ะ หากต้องการความช่วยเหลือเพิ่มเติมบอกได้เลยนะคะ",
		models.IntentOrderStatus:  "ขณะนี้ยังตรวจสอบคำสั่งซื้อไม่ได้ค่ะ รบกวนแจ้งหมายเลขคำสั่งซื้อ ทีมงานจะติดต่อกลับโดยเร็วค่ะ",
		models.IntentDeliveryInfo: "เราจัดส่งเกือบทุกวันค่ะ แจ้งพื้นที่และวันที่ต้องการจัดส่งได้เลยค่ะ",
		models.IntentComplaint:    "ต้องขออภัยเป็นอย่างยิ่งค่ะ รบกวนแจ้งหมายเลขคำสั่งซื้อและรูปภาพ ทีมงานจะรีบดูแลให้ค่ะ",
	},
	"es": {
		replyRefusal:              "Lo siento, no puedo ayudar con eso. Con gusto te ayudo a elegir flores o con tu pedido.",
		replyThrottled:            "Estás enviando mensajes muy rápido. Espera un momento e inténtalo de nuevo.",
		replyInvalid:              "Lo siento, no pude leer ese mensaje. ¿Puedes escribirlo de forma más breve?",
		replyApology:              "Lo siento, tengo problemas en este momento. Inténtalo de nuevo en un momento o dime qué flores buscas.",
		replyNoMatch:              "No encontré nada que coincida ahora mismo. ¿Me cuentas más sobre las flores, colores o presupuesto?",
		replyIntro:                "Aquí tienes algunas opciones:",
		replyAlternative:          "opción similar",
		replyUnavailable:          "agotado por ahora",
		replyGeneral:              "Puedo ayudarte a elegir flores, consultar precios y responder dudas de envío. ¿Qué buscas?",
		models.IntentGreeting:     "¡Hola! ¿Buscas flores para alguien especial? Cuéntame la ocasión, colores o presupuesto.",
		models.IntentThanks:       "¡Con gusto! Avísame si necesitas algo más.",
		models.IntentOrderStatus:  "No puedo consultar pedidos en este momento. Compárteme tu número de pedido y nuestro equipo te responderá pronto.",
		models.IntentDeliveryInfo: "Hacemos entregas casi todos los días. Dime la zona y la fecha y reviso qué es posible.",
		models.IntentComplaint:    "Lamento mucho lo ocurrido. Compárteme tu número de pedido y una foto si puedes, y lo solucionaremos.",
	},
}

func canned(lang, key string) string {
	if table, ok := cannedReplies[lang]; ok {
		if s, ok := table[key]; ok {
			return s
		}
	}
	return cannedReplies["en"][key]
}

// templatedReply lists the top recommendations, or falls back to a canned
// answer for the intent. It never returns an empty string.
func templatedReply(lang, intentLabel, formatHint string, recs []models.Recommendation, searched bool) string {
	if len(recs) == 0 {
		switch {
		case searched:
			return canned(lang, replyNoMatch)
		case intentLabel == "" || intentLabel == models.IntentGeneralInquiry ||
			intentLabel == models.IntentProductSearch || intentLabel == models.IntentPriceInquiry:
			return canned(lang, replyApology)
		default:
			if s := canned(lang, intentLabel); s != "" {
				return s
			}
			return canned(lang, replyGeneral)
		}
	}

	var b strings.Builder
	b.WriteString(canned(lang, replyIntro))
	for i, r := range recs {
		name := r.Product.Name
		if formatHint == "markdown" {
			name = "**" + name + "**"
		}
		fmt.Fprintf(&b, "\n%d. %s - %s", i+1, name, formatPrice(r.Product.Price))

		var notes []string
		if r.Reason != "" {
			notes = append(notes, r.Reason)
		}
		if r.IsAlternative {
			notes = append(notes, canned(lang, replyAlternative))
		}
		if !r.Product.Available {
			notes = append(notes, canned(lang, replyUnavailable))
		}
		if len(notes) > 0 {
			b.WriteString(" (" + strings.Join(notes, "; ") + ")")
		}
	}
	return b.String()
}

func formatPrice(p float64) string {
	if p == float64(int64(p)) {
		return strconv.FormatInt(int64(p), 10)
	}
	return strconv.FormatFloat(p, 'f', 2, 64)
}

var (
	fenceLineRe  = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$\\n?")
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// sanitizeReply trims generated text, drops code fences and caps its length
// in runes. An empty result means the generation is unusable.
func sanitizeReply(text string, maxRunes int) string {
	text = fenceLineRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(strings.TrimSpace(text), "\n\n")
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)[:maxRunes]
		cut := string(runes)
		if i := strings.LastIndexAny(cut, ".!?\n"); i > len(cut)/2 {
			cut = cut[:i+1]
		}
		text = strings.TrimSpace(cut)
	}
	return text
}

package intent

import (
	"sort"
	"strings"
	"unicode"
)

// Class names one synonym table.
type Class string

const (
	ClassFlower   Class = "flower"
	ClassColor    Class = "color"
	ClassOccasion Class = "occasion"
	ClassStyle    Class = "style"
)

// Many-to-one tables: variant spelling (en / th / es) -> canonical token.
var synonymTables = map[Class]map[string]string{
	ClassFlower: {
		"rose": "rose", "roses": "rose", "กุหลาบ": "rose", "rosa": "rose", "rosas": "rose",
		"tulip": "tulip", "tulips": "tulip", "ทิวลิป": "tulip", "tulipán": "tulip", "tulipan": "tulip", "tulipanes": "tulip",
		"lily": "lily", "lilies": "lily", "ลิลลี่": "lily", "lirio": "lily", "lirios": "lily", "azucena": "lily",
		"sunflower": "sunflower", "sunflowers": "sunflower", "ทานตะวัน": "sunflower", "girasol": "sunflower", "girasoles": "sunflower",
		"orchid": "orchid", "orchids": "orchid", "กล้วยไม้": "orchid", "orquídea": "orchid", "orquidea": "orchid", "orquídeas": "orchid", "orquideas": "orchid",
		"carnation": "carnation", "carnations": "carnation", "คาร์เนชั่น": "carnation", "clavel": "carnation", "claveles": "carnation",
		"peony": "peony", "peonies": "peony", "โบตั๋น": "peony", "peonía": "peony", "peonia": "peony", "peonías": "peony",
		"daisy": "daisy", "daisies": "daisy", "เดซี่": "daisy", "margarita": "daisy", "margaritas": "daisy",
		"gerbera": "gerbera", "gerberas": "gerbera", "เยอบีร่า": "gerbera",
		"hydrangea": "hydrangea", "hydrangeas": "hydrangea", "ไฮเดรนเยีย": "hydrangea", "hortensia": "hydrangea", "hortensias": "hydrangea",
	},
	ClassColor: {
		"red": "red", "แดง": "red", "rojo": "red", "roja": "red", "rojos": "red", "rojas": "red",
		"pink": "pink", "ชมพู": "pink", "rosado": "pink", "rosada": "pink", "rosados": "pink", "rosadas": "pink",
		"white": "white", "ขาว": "white", "blanco": "white", "blanca": "white", "blancos": "white", "blancas": "white",
		"yellow": "yellow", "เหลือง": "yellow", "amarillo": "yellow", "amarilla": "yellow", "amarillos": "yellow", "amarillas": "yellow",
		"purple": "purple", "violet": "purple", "ม่วง": "purple", "morado": "purple", "morada": "purple", "púrpura": "purple", "purpura": "purple",
		"orange": "orange", "ส้ม": "orange", "naranja": "orange", "anaranjado": "orange",
		"blue": "blue", "ฟ้า": "blue", "น้ำเงิน": "blue", "azul": "blue", "azules": "blue",
		"peach": "peach", "พีช": "peach", "melocotón": "peach", "durazno": "peach",
		"cream": "cream", "ivory": "cream", "ครีม": "cream", "crema": "cream", "marfil": "cream",
	},
	ClassOccasion: {
		"birthday": "birthday", "bday": "birthday", "วันเกิด": "birthday", "cumpleaños": "birthday", "cumpleanos": "birthday",
		"anniversary": "anniversary", "ครบรอบ": "anniversary", "aniversario": "anniversary",
		"valentine": "valentine", "valentines": "valentine", "valentine's": "valentine", "วาเลนไทน์": "valentine", "san valentín": "valentine", "san valentin": "valentine",
		"wedding": "wedding", "งานแต่ง": "wedding", "แต่งงาน": "wedding", "boda": "wedding",
		"congratulations": "congratulations", "congrats": "congratulations", "graduation": "congratulations",
		"แสดงความยินดี": "congratulations", "รับปริญญา": "congratulations", "felicitaciones": "congratulations", "graduación": "congratulations",
		"get well": "get_well", "recovery": "get_well", "เยี่ยมไข้": "get_well", "หายป่วย": "get_well", "mejórate": "get_well", "recuperación": "get_well",
		"sympathy": "sympathy", "funeral": "sympathy", "condolences": "sympathy", "งานศพ": "sympathy", "ไว้อาลัย": "sympathy", "condolencias": "sympathy",
		"mother's day": "mothers_day", "mothers day": "mothers_day", "วันแม่": "mothers_day", "día de la madre": "mothers_day", "dia de la madre": "mothers_day",
		"apology": "apology", "sorry": "apology", "ขอโทษ": "apology", "perdón": "apology", "disculpa": "apology",
	},
	ClassStyle: {
		"elegant": "elegant", "เรียบหรู": "elegant", "elegante": "elegant",
		"romantic": "romantic", "โรแมนติก": "romantic", "romántico": "romantic", "romantico": "romantic", "romántica": "romantic",
		"modern": "modern", "โมเดิร์น": "modern", "moderno": "modern", "moderna": "modern",
		"classic": "classic", "คลาสสิก": "classic", "clásico": "classic", "clasico": "classic",
		"minimalist": "minimalist", "minimal": "minimalist", "มินิมอล": "minimalist", "minimalista": "minimalist",
		"rustic": "rustic", "rústico": "rustic", "rustico": "rustic",
		"luxury": "luxury", "premium": "luxury", "หรูหรา": "luxury", "lujo": "luxury", "lujoso": "luxury",
		"cute": "cute", "น่ารัก": "cute", "lindo": "cute", "linda": "cute",
	},
}

// Neighbouring canonical tokens used to broaden a search that found too little.
var relatedTables = map[Class]map[string][]string{
	ClassFlower: {
		"rose":      {"carnation", "peony", "tulip"},
		"tulip":     {"lily", "rose"},
		"lily":      {"orchid", "tulip"},
		"sunflower": {"gerbera", "daisy"},
		"orchid":    {"lily"},
		"carnation": {"rose", "gerbera"},
		"peony":     {"rose", "hydrangea"},
		"daisy":     {"gerbera", "sunflower"},
		"gerbera":   {"daisy", "sunflower"},
		"hydrangea": {"peony"},
	},
	ClassColor: {
		"red":    {"pink"},
		"pink":   {"red", "peach"},
		"white":  {"cream"},
		"yellow": {"orange", "cream"},
		"purple": {"blue", "pink"},
		"orange": {"yellow", "peach"},
		"blue":   {"purple"},
		"peach":  {"pink", "orange"},
		"cream":  {"white"},
	},
	ClassOccasion: {
		"valentine":       {"anniversary"},
		"anniversary":     {"valentine"},
		"birthday":        {"congratulations"},
		"congratulations": {"birthday"},
		"get_well":        {"apology"},
	},
	ClassStyle: {
		"elegant":    {"classic", "luxury"},
		"romantic":   {"elegant"},
		"modern":     {"minimalist"},
		"minimalist": {"modern"},
		"classic":    {"elegant"},
		"luxury":     {"elegant"},
	},
}

// Canonical maps a single variant to its canonical token.
func Canonical(class Class, token string) (string, bool) {
	c, ok := synonymTables[class][strings.ToLower(strings.TrimSpace(token))]
	return c, ok
}

// Related returns broadening neighbours of a canonical token.
func Related(class Class, canonical string) []string {
	return relatedTables[class][canonical]
}

// Find returns the canonical tokens of class mentioned in text, in order of
// first appearance.
func Find(class Class, text string) []string {
	norm := normalizeText(text)
	padded := " " + norm + " "

	first := make(map[string]int)
	for variant, canonical := range synonymTables[class] {
		idx := -1
		if isThai(variant) {
			idx = strings.Index(norm, variant)
		} else if i := strings.Index(padded, " "+variant+" "); i >= 0 {
			idx = i
		}
		if idx < 0 {
			continue
		}
		if prev, ok := first[canonical]; !ok || idx < prev {
			first[canonical] = idx
		}
	}

	out := make([]string, 0, len(first))
	for c := range first {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if first[out[i]] != first[out[j]] {
			return first[out[i]] < first[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// CanonicalizeAll maps free-form values onto canonical tokens, dropping
// duplicates. Values without a table entry are kept lower-cased.
func CanonicalizeAll(class Class, values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if c, ok := Canonical(class, v); ok {
			v = c
		} else if found := Find(class, v); len(found) > 0 {
			v = found[0]
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Terms returns every canonical token of every class found in text.
func Terms(text string) []string {
	var out []string
	for _, class := range []Class{ClassFlower, ClassColor, ClassOccasion, ClassStyle} {
		out = append(out, Find(class, text)...)
	}
	return out
}

// normalizeText lower-cases text and turns punctuation into single spaces.
// Apostrophes survive so "mother's day" still matches.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '\'' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func isThai(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Thai, r) {
			return true
		}
	}
	return false
}

// Tokens splits text into lower-cased words without punctuation.
func Tokens(text string) []string {
	return strings.Fields(normalizeText(text))
}

package intent

import (
	"strings"
	"unicode"
)

// Supported reply languages.
const (
	LangEnglish = "en"
	LangThai    = "th"
	LangSpanish = "es"
)

var spanishMarkers = map[string]bool{
	"hola": true, "quiero": true, "busco": true, "necesito": true, "para": true, "por": true, "favor": true,
	"gracias": true, "flores": true, "ramo": true, "precio": true, "cuánto": true, "cuanto": true, "cuesta": true,
	"menos": true, "mi": true, "mis": true, "esposa": true, "esposo": true, "mamá": true, "pedido": true,
	"envío": true, "entrega": true, "hoy": true, "mañana": true, "con": true, "una": true, "unas": true, "unos": true,
	"buenos": true, "buenas": true, "días": true, "tienen": true, "puedo": true, "qué": true, "dónde": true,
}

// DetectLanguage guesses en, th or es from the script and a small marker
// vocabulary. Anything undecided is English.
func DetectLanguage(text string) string {
	thai, letters := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Thai, r):
			thai++
			letters++
		case unicode.IsLetter(r):
			letters++
		case r == '¿' || r == '¡':
			return LangSpanish
		}
	}
	if letters == 0 {
		return ""
	}
	if thai*3 >= letters {
		return LangThai
	}

	hits := 0
	for _, w := range strings.Fields(normalizeText(text)) {
		if spanishMarkers[w] {
			hits++
		}
		if strings.ContainsRune(w, 'ñ') {
			hits += 2
		}
	}
	if hits >= 2 {
		return LangSpanish
	}
	return LangEnglish
}

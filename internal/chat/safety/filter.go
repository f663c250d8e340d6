// Package safety screens raw customer text for prompt-injection, jailbreak
// and abusive content before any other stage sees it.
package safety

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

type RiskLevel string

const (
	RiskNone   RiskLevel = "none"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Issue identifiers reported in Result.Issues.
const (
	IssueJailbreak       = "jailbreak_attempt"
	IssuePromptInjection = "prompt_injection"
	IssueCodeInjection   = "code_injection"
	IssueThreat          = "threat"
	IssueOffensive       = "offensive_language"
	IssueFilterError     = "filter_error"
)

// Result is the verdict for one message.
type Result struct {
	IsSafe    bool      `json:"isSafe"`
	RiskLevel RiskLevel `json:"riskLevel"`
	Issues    []string  `json:"issues"`
}

// Pattern is one compiled rule.
type Pattern struct {
	Issue string
	Risk  RiskLevel
	Expr  string
	re    *regexp.Regexp
}

var defaultPatterns = []Pattern{
	// jailbreak / role override, en
	// the object must be the assistant's own instructions, not the customer's
	{Issue: IssueJailbreak, Risk: RiskHigh, Expr: `\b(ignore|disregard|forget|override)\s+((all\s+(of\s+)?(the\s+|your\s+)?|your\s+)((previous|prior|above|earlier|original|initial|system)\s+)?|(the\s+)?(previous|prior|above|earlier|original|initial|system)\s+)(instructions?|prompts?|rules|guidelines)\b`},
	{Issue: IssueJailbreak, Risk: RiskHigh, Expr: `\byou are now\b.{0,30}\b(dan|unfiltered|unrestricted|jailbroken|evil)\b`},
	{Issue: IssueJailbreak, Risk: RiskHigh, Expr: `\b(do anything now|developer mode|jailbreak|jailbroken)\b`},
	{Issue: IssueJailbreak, Risk: RiskHigh, Expr: `\b(pretend|act|behave)\b.{0,20}\b(as|to be|like)\b.{0,20}\b(unrestricted|unfiltered|no rules|without (any )?restrictions)\b`},
	{Issue: IssueJailbreak, Risk: RiskHigh, Expr: `\bbypass\b.{0,20}\b(safety|filters?|restrictions|guardrails|moderation)\b`},
	// jailbreak, th / es
	{Issue: IssueJailbreak, Risk: RiskHigh, Expr: `(ลืม|เพิกเฉย|ไม่ต้องสนใจ).{0,20}คำสั่ง`},
	{Issue: IssueJailbreak, Risk: RiskHigh, Expr: `\b(ignora|olvida)\s+(todas\s+las|tus)\s+(instrucciones|reglas)\b|\b(ignora|olvida)\s+(las\s+)?(instrucciones|reglas)\s+(anteriores|previas|del sistema)\b`},
	// prompt exfiltration / injection markers
	{Issue: IssuePromptInjection, Risk: RiskHigh, Expr: `\b(reveal|show|print|repeat|leak)\b.{0,30}\b(system prompt|hidden prompt|your instructions|initial prompt)\b`},
	// role marker at the start of the message or of a line
	{Issue: IssuePromptInjection, Risk: RiskHigh, Expr: `(?m)^[ \t]*(system|assistant)\s*:`},
	{Issue: IssuePromptInjection, Risk: RiskHigh, Expr: `<\|?(im_start|im_end|system|endoftext)\|?>`},
	{Issue: IssuePromptInjection, Risk: RiskHigh, Expr: `\[/?(inst|sys)\]`},
	// code / query injection
	{Issue: IssueCodeInjection, Risk: RiskMedium, Expr: `<\s*script\b|javascript\s*:|on(error|load)\s*=`},
	{Issue: IssueCodeInjection, Risk: RiskMedium, Expr: `\b(drop|truncate)\s+table\b|\bunion\s+(all\s+)?select\b|'\s*or\s+'?1'?\s*=\s*'?1`},
	// threats
	{Issue: IssueThreat, Risk: RiskHigh, Expr: `\b(i will|i'll|gonna|going to)\s+(kill|hurt|shoot|stab)\b`},
	{Issue: IssueThreat, Risk: RiskHigh, Expr: `\b(bomb|burn down)\b.{0,20}\b(shop|store|you)\b`},
}

var defaultOffensiveTerms = []string{
	"fuck", "fucking", "motherfucker", "shit", "bitch", "bastard", "cunt", "asshole", "dickhead", "whore",
	"puta", "pendejo", "cabron", "mierda",
}

// Thai is written without word breaks, so these match as substrings.
var defaultOffensiveSubstrings = []string{"เหี้ย", "ส้นตีน", "ไอ้สัส"}

var leetReplacer = strings.NewReplacer("0", "o", "1", "i", "3", "e", "4", "a", "5", "s", "@", "a", "$", "s")

// Filter is safe for concurrent use; it holds only immutable state.
type Filter struct {
	patterns   []Pattern
	offensive  map[string]bool
	substrings []string
	normalize  func(string) string
}

// NewFilter compiles the built-in rules plus any extra patterns.
func NewFilter(extra ...Pattern) (*Filter, error) {
	all := make([]Pattern, 0, len(defaultPatterns)+len(extra))
	all = append(all, defaultPatterns...)
	all = append(all, extra...)

	for i := range all {
		re, err := regexp.Compile(`(?i)` + all[i].Expr)
		if err != nil {
			return nil, fmt.Errorf("compile safety pattern %q: %w", all[i].Expr, err)
		}
		all[i].re = re
	}

	offensive := make(map[string]bool, len(defaultOffensiveTerms))
	for _, term := range defaultOffensiveTerms {
		offensive[term] = true
	}

	return &Filter{
		patterns:   all,
		offensive:  offensive,
		substrings: defaultOffensiveSubstrings,
		normalize:  normalize,
	}, nil
}

// Check classifies text. Any internal failure yields an unsafe verdict.
func (f *Filter) Check(text string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{IsSafe: false, RiskLevel: RiskHigh, Issues: []string{IssueFilterError}}
		}
	}()

	normalized := f.normalize(text)
	risk := RiskNone
	issues := make([]string, 0, 2)
	seen := make(map[string]bool)

	for _, p := range f.patterns {
		if seen[p.Issue] && riskRank(p.Risk) <= riskRank(risk) {
			continue
		}
		if p.re.MatchString(normalized) {
			if !seen[p.Issue] {
				seen[p.Issue] = true
				issues = append(issues, p.Issue)
			}
			if riskRank(p.Risk) > riskRank(risk) {
				risk = p.Risk
			}
		}
	}

	if f.containsOffensive(normalized) {
		issues = append(issues, IssueOffensive)
		if riskRank(RiskMedium) > riskRank(risk) {
			risk = RiskMedium
		}
	}

	return Result{IsSafe: len(issues) == 0, RiskLevel: risk, Issues: issues}
}

func (f *Filter) containsOffensive(normalized string) bool {
	for _, token := range tokenize(normalized) {
		if f.offensive[token] || f.offensive[leetReplacer.Replace(token)] {
			return true
		}
	}
	for _, sub := range f.substrings {
		if strings.Contains(normalized, sub) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	text = strings.ToLower(text)
	// collapse zero-width characters used to split trigger words
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		return r
	}, text)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}

func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) &&
			r != '@' && r != '$'
	})
}

func riskRank(r RiskLevel) int {
	switch r {
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	}
	return 0
}

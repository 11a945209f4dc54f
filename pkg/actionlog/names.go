package actionlog

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	// Matches a stage title such as "(2) Initial Assessment (action)".
	stageNameRegex = regexp.MustCompile(`^\s*\((\d+)\)\s*(.+?)\s*\(action\)\s*$`)

	// Matches the first energy token such as "100J" or "200j".
	shockValueRegex = regexp.MustCompile(`(.*?)(\b\d+[Jj]\b)(.*)`)
)

// unavailableTag is appended by the simulator to actions that could not be run.
const unavailableTag = "UNAVAILABLE"

// nameCorrections fixes spellings the simulator emits.
var nameCorrections = map[string]string{
	"Ascultate Lungs":    "Auscultate Lungs",
	"SYNCHRONIZED Shock": "Synchronized Shock",
}

// categoryOverrides groups actions under a shared category.
var categoryOverrides = map[string]string{
	"Select Amiodarone":  "Medication",
	"Select Calcium":     "Medication",
	"Select Epinephrine": "Medication",
	"Select Lidocaine":   "Medication",
}

// Stage identifies a training stage by number and name.
type Stage struct {
	Number uint32 `json:"number" yaml:"number"`
	Name   string `json:"name" yaml:"name"`
}

// ExtractStage parses "(N) name (action)" into a Stage.
func ExtractStage(input string) (Stage, bool) {
	m := stageNameRegex.FindStringSubmatch(input)
	if m == nil {
		return Stage{}, false
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return Stage{}, false
	}
	return Stage{Number: uint32(n), Name: NormalizeWhitespace(m[2])}, true
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CapitalizeWords title-cases each space separated word. Words without a
// lowercase letter (acronyms, numbers, energy values) are kept as they are.
// A letter that follows an opening parenthesis is upper-cased as well.
func CapitalizeWords(s string) string {
	lower := cases.Lower(language.Und)
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" || !strings.ContainsFunc(w, unicode.IsLower) {
			continue
		}
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + lower.String(w[size:])
	}
	return upperAfterParen(strings.Join(words, " "))
}

func upperAfterParen(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	afterParen := false
	for _, r := range s {
		if afterParen {
			r = unicode.ToUpper(r)
		}
		afterParen = r == '('
		b.WriteRune(r)
	}
	return b.String()
}

// ExtractShockValue removes the first energy token from input and returns
// the remaining name together with the token in its original case.
func ExtractShockValue(input string) (name, shock string) {
	m := shockValueRegex.FindStringSubmatch(input)
	if m == nil {
		return input, ""
	}
	before := strings.TrimSpace(m[1])
	after := strings.TrimSpace(m[3])
	return strings.TrimSpace(before + " " + after), strings.TrimSpace(m[2])
}

// NormalizeActionName turns a raw subaction name into its display name,
// category and shock value.
func NormalizeActionName(raw string) (name, category, shock string) {
	cleaned := strings.ReplaceAll(CapitalizeWords(raw), unavailableTag, "")
	name, shock = ExtractShockValue(NormalizeWhitespace(cleaned))

	if corrected, ok := nameCorrections[name]; ok {
		name = corrected
	}

	category = name
	if override, ok := categoryOverrides[name]; ok {
		category = override
	}
	return name, category, shock
}

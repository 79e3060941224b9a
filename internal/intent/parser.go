// Package intent turns command text into a domain.Intent without any
// network round-trip. Rules are English-only and tried in a fixed order; the
// first rule that matches wins.
package intent

import (
	"regexp"
	"strconv"
	"strings"

	"mealvoice/internal/domain"
)

var (
	addPattern          = regexp.MustCompile(`\badd\s+(\d+(?:\.\d+)?)\s*(\w+)?\s+([a-z ]+)$`)
	deletePattern       = regexp.MustCompile(`\b(delete|remove)\s+(?:ingredient\s+)?([a-z ]+)$`)
	deliveryTimePattern = regexp.MustCompile(`\b(set\s+)?delivery\s+(time\s+)?(to|at)\s+(.+)$`)
)

var (
	enablePhrases  = []string{"enable delivery", "turn on delivery"}
	disablePhrases = []string{"disable delivery", "turn off delivery"}
)

// Parse maps text to an Intent. Text that no rule claims comes back as
// Unknown carrying the original, unmodified text.
func Parse(text string) domain.Intent {
	t := strings.ToLower(text)

	if m := addPattern.FindStringSubmatch(t); m != nil {
		quantity, err := strconv.ParseFloat(m[1], 64)
		name := strings.TrimSpace(m[3])
		if err == nil && name != "" {
			return domain.AddIngredient(name, quantity, strings.TrimSpace(m[2]))
		}
	}

	if m := deletePattern.FindStringSubmatch(t); m != nil {
		if name := strings.TrimSpace(m[2]); name != "" {
			return domain.DeleteIngredient(name)
		}
	}

	if m := deliveryTimePattern.FindStringSubmatch(t); m != nil {
		if hhmm, ok := ParseTime(m[4]); ok {
			return domain.SetDeliveryTime(hhmm)
		}
	}

	if containsAny(t, enablePhrases) {
		return domain.SetDeliveryEnabled(true)
	}
	if containsAny(t, disablePhrases) {
		return domain.SetDeliveryEnabled(false)
	}

	return domain.Unknown(text)
}

// ParseLocalized applies Parse only to English transcripts. Anything spoken
// in another locale is returned as Unknown so the remote NLU handles it.
func ParseLocalized(text, locale string) domain.Intent {
	if !IsEnglish(locale) {
		return domain.Unknown(text)
	}
	return Parse(text)
}

// IsEnglish reports whether a BCP 47 tag names English. An empty tag counts
// as English.
func IsEnglish(locale string) bool {
	if locale == "" {
		return true
	}
	lang, _, _ := strings.Cut(strings.ToLower(locale), "-")
	lang, _, _ = strings.Cut(lang, "_")
	return lang == "en"
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

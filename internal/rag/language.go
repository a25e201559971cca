package rag

import (
	"regexp"
	"strings"
)

// Language is a detected query language.
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguageArabic     Language = "ar"
	LanguageUrdu       Language = "ur"
	LanguageTurkish    Language = "tr"
	LanguageIndonesian Language = "id"
)

var languageNames = map[Language]string{
	LanguageEnglish:    "English",
	LanguageArabic:     "Arabic",
	LanguageUrdu:       "Urdu",
	LanguageTurkish:    "Turkish",
	LanguageIndonesian: "Indonesian",
}

// Name returns the English name of the language.
func (l Language) Name() string {
	if n, ok := languageNames[l]; ok {
		return n
	}
	return languageNames[LanguageEnglish]
}

var indonesianWords = regexp.MustCompile(`(?i)\b(yang|adalah|untuk|dalam|dengan|akan|pada|ini|itu|tidak|ada|atau)\b`)

// DetectLanguage guesses the language of a query from its script and a few
// common words. Urdu-only letters are checked before the shared Arabic block.
func DetectLanguage(query string) Language {
	switch {
	case strings.ContainsAny(query, "ٹڈڑںے"):
		return LanguageUrdu
	case containsArabicScript(query):
		return LanguageArabic
	case strings.ContainsAny(query, "ğĞıİöÖüÜşŞçÇ"):
		return LanguageTurkish
	case indonesianWords.MatchString(query):
		return LanguageIndonesian
	default:
		return LanguageEnglish
	}
}

func containsArabicScript(s string) bool {
	for _, r := range s {
		if (r >= 0x0600 && r <= 0x06FF) || (r >= 0x0750 && r <= 0x077F) || (r >= 0x08A0 && r <= 0x08FF) {
			return true
		}
	}
	return false
}

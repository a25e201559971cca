package rag

import (
	"fmt"
	"strings"

	"github.com/alqutdigital/hikma/internal/chunker"
	"github.com/alqutdigital/hikma/internal/storage"
)

// Passage is one retrieved verse or hadith.
type Passage struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Text         string  `json:"text"`
	TextArabic   string  `json:"text_arabic,omitempty"`
	SurahName    string  `json:"surah_name,omitempty"`
	AyahKey      string  `json:"ayah_key,omitempty"`
	Book         string  `json:"book,omitempty"`
	HadithNumber string  `json:"hadith_number,omitempty"`
	Grade        string  `json:"grade,omitempty"`
	Score        float64 `json:"score"`
	Citation     string  `json:"citation"`
}

func passageFromMatch(m storage.Match, lang Language) Passage {
	md := m.Metadata
	p := Passage{
		ID:    m.ID,
		Type:  str(md, "type"),
		Score: m.Score,
	}

	switch p.Type {
	case "quran":
		p.TextArabic = str(md, "text_arabic")
		p.Text = str(md, "text_english")
		if lang == LanguageArabic && p.TextArabic != "" {
			p.Text = p.TextArabic
		}
		p.SurahName = str(md, "surah_name")
		p.AyahKey = str(md, "ayah_key")
		if p.AyahKey == "" {
			p.AyahKey = str(md, "surah_number") + ":" + str(md, "ayah_number")
		}
		p.Citation = "Quran " + p.AyahKey
	case "hadith":
		p.TextArabic = str(md, "arabic_text")
		p.Text = str(md, "english_text")
		p.Book = str(md, "book_name")
		p.HadithNumber = str(md, "hadith_number")
		p.Grade = str(md, "grade")
		p.Citation = fmt.Sprintf("%s #%s", p.Book, p.HadithNumber)
	default:
		p.Text = str(md, "text")
		p.Citation = m.ID
	}
	return p
}

// str reads a metadata value as text. Numeric values from JSON arrive as float64.
func str(md map[string]any, key string) string {
	switch v := md[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

// Sources returns the distinct citations in order of first appearance.
func Sources(passages []Passage) []string {
	seen := make(map[string]bool, len(passages))
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		if seen[p.Citation] {
			continue
		}
		seen[p.Citation] = true
		out = append(out, p.Citation)
	}
	return out
}

// FormatContext renders passages as a markdown knowledge block for an LLM
// prompt. When budget is set, passages that would exceed it are left out.
func FormatContext(passages []Passage, lang Language, budget *chunker.TextBudget) string {
	if len(passages) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Islamic Knowledge Base (%s)\n\n", lang.Name())
	b.WriteString("The following are authentic Islamic sources:\n\n")

	for i, p := range passages {
		var s strings.Builder
		fmt.Fprintf(&s, "## Source %d\n", i+1)
		switch p.Type {
		case "quran":
			s.WriteString("**Type:** Quran\n")
			fmt.Fprintf(&s, "**Surah:** %s (%s)\n", p.SurahName, p.AyahKey)
		case "hadith":
			s.WriteString("**Type:** Hadith\n")
			fmt.Fprintf(&s, "**Collection:** %s\n", p.Book)
			fmt.Fprintf(&s, "**Number:** %s\n", p.HadithNumber)
		}
		if lang == LanguageArabic || lang == LanguageUrdu {
			if p.TextArabic != "" {
				fmt.Fprintf(&s, "**Arabic Text:**\n%s\n\n", p.TextArabic)
			}
		}
		if lang != LanguageArabic {
			fmt.Fprintf(&s, "**Translation:**\n%s\n\n", p.Text)
		}
		s.WriteString("---\n\n")

		if budget != nil && budget.Count(b.String()+s.String()) > budget.MaxTokens() {
			break
		}
		b.WriteString(s.String())
	}
	return b.String()
}

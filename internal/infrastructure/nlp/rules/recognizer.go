package rules

import (
	"context"
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/kirillkom/estate-docs/internal/core/domain"
)

type rule struct {
	category    string
	subcategory string
	confidence  float64
	pattern     *regexp.Regexp
	// group selects the submatch that forms the entity span; 0 is the whole match.
	group int
}

const monthNames = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.?`

var defaultRules = []rule{
	{
		category: "Quantity", subcategory: "Currency", confidence: 0.8,
		pattern: regexp.MustCompile(`(?:\$|₹|Rs\.?\s?)\d[\d,]*(?:\.\d+)?`),
	},
	{
		category: "DateTime", subcategory: "Date", confidence: 0.8,
		pattern: regexp.MustCompile(`\b` + monthNames + ` \d{1,2},? \d{4}\b`),
	},
	{
		category: "DateTime", subcategory: "Date", confidence: 0.8,
		pattern: regexp.MustCompile(`\b\d{1,2} ` + monthNames + ` \d{4}\b`),
	},
	{
		category: "DateTime", subcategory: "Date", confidence: 0.7,
		pattern: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	},
	{
		category: "PhoneNumber", confidence: 0.8,
		pattern: regexp.MustCompile(`\(?\b\d{3}\)?[-.\s]\d{3}[-.]\d{4}\b`),
	},
	{
		category: "Email", confidence: 0.8,
		pattern: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	},
	{
		category: "Person", confidence: 0.7, group: 1,
		pattern: regexp.MustCompile(`\b(?i:tenant|landlord|lessee|lessor|owner|bill to)[: \t]+([A-Z][a-z]+(?: [A-Z][a-z]+)+)`),
	},
	{
		category: "Address", confidence: 0.7,
		pattern: regexp.MustCompile(`\b\d{1,5}(?: [A-Z][a-z]+)+ (?:Street|St|Avenue|Ave|Road|Rd|Lane|Ln|Drive|Dr|Boulevard|Blvd)\b\.?`),
	},
}

// Recognizer finds entity spans with regular expressions. It is the offline
// stand-in for a hosted entity recognition service and never fails.
type Recognizer struct {
	rules []rule
}

func NewRecognizer() *Recognizer {
	return &Recognizer{rules: defaultRules}
}

type span struct {
	start, end int
	rule       *rule
}

// ExtractEntities returns non-overlapping entities ordered by offset.
// Offset and Length count characters, not bytes.
func (r *Recognizer) ExtractEntities(ctx context.Context, text string) ([]domain.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spans := make([]span, 0)
	for i := range r.rules {
		rl := &r.rules[i]
		for _, loc := range rl.pattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := loc[2*rl.group], loc[2*rl.group+1]
			if start < 0 || end <= start {
				continue
			}
			spans = append(spans, span{start: start, end: end, rule: rl})
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end-spans[i].start > spans[j].end-spans[j].start
	})

	entities := make([]domain.Entity, 0, len(spans))
	lastEnd := 0
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		lastEnd = s.end
		entities = append(entities, domain.Entity{
			Text:            text[s.start:s.end],
			Category:        s.rule.category,
			Subcategory:     s.rule.subcategory,
			ConfidenceScore: s.rule.confidence,
			Offset:          utf8.RuneCountInString(text[:s.start]),
			Length:          utf8.RuneCountInString(text[s.start:s.end]),
		})
	}
	return entities, nil
}

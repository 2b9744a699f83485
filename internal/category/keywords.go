// Package category holds the single keyword-based category inference table
// shared by the keyword fallback classifier and the deduplicator's incident
// category inference — the original system kept two independent copies of
// this table (ml/classifier.py and ml/deduplication.py); this is the one.
package category

import "strings"

// Ordered is the fixed, stable tie-break order used whenever a vote is even.
var Ordered = []string{"Billing", "Technical", "Legal", "General"}

var keywords = map[string][]string{
	"Billing":   {"invoice", "payment", "bill", "charge", "refund"},
	"Technical": {"error", "bug", "crash", "broken", "api", "server"},
	"Legal":     {"legal", "compliance", "gdpr", "privacy", "contract"},
}

// Infer returns the category whose keyword set has the most hits in text,
// breaking ties by Ordered, defaulting to "General" when nothing matches.
func Infer(text string) string {
	lower := strings.ToLower(text)
	counts := make(map[string]int, len(keywords))
	for cat, kws := range keywords {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				counts[cat]++
			}
		}
	}

	best := ""
	bestCount := 0
	for _, cat := range Ordered {
		if cat == "General" {
			continue
		}
		if counts[cat] > bestCount {
			best = cat
			bestCount = counts[cat]
		}
	}
	if best == "" {
		return "General"
	}
	return best
}

// VoteMajority infers a category per text and returns the majority vote
// across all of them, using the same stable tie order.
func VoteMajority(texts []string) string {
	tally := make(map[string]int)
	for _, t := range texts {
		tally[Infer(t)]++
	}
	best := "General"
	bestCount := 0
	for _, cat := range Ordered {
		if tally[cat] > bestCount {
			best = cat
			bestCount = tally[cat]
		}
	}
	return best
}

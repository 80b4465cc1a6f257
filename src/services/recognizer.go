package services

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// KeywordRecognizer is a heuristic BillRecognizer: keyword scoring over
// subject and body plus an amount regex. It is intentionally simple; the
// sync engine treats any BillRecognizer as a black box, so a smarter
// implementation can be swapped in without touching the engine.
type KeywordRecognizer struct {
	minConfidence float64
}

// NewKeywordRecognizer builds the recognizer with the given acceptance
// threshold (0.5 when out of range).
func NewKeywordRecognizer(minConfidence float64) *KeywordRecognizer {
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = 0.5
	}
	return &KeywordRecognizer{minConfidence: minConfidence}
}

var billKeywords = map[string]float64{
	"invoice":         0.3,
	"bill":            0.3,
	"payment due":     0.35,
	"amount due":      0.35,
	"due date":        0.25,
	"statement":       0.2,
	"autopay":         0.2,
	"past due":        0.3,
	"account balance": 0.15,
}

var billTypeKeywords = map[string]string{
	"electric":  "utilities",
	"gas":       "utilities",
	"water":     "utilities",
	"internet":  "telecom",
	"wireless":  "telecom",
	"phone":     "telecom",
	"insurance": "insurance",
	"mortgage":  "housing",
	"rent":      "housing",
}

var amountPattern = regexp.MustCompile(`(?i)(?:\$|USD\s?)\s?([0-9][0-9,]*\.?[0-9]{0,2})`)
var dueDatePattern = regexp.MustCompile(`(?i)due\s+(?:date|on|by)?[:\s]+(\d{4}-\d{2}-\d{2})`)

// Recognize implements BillRecognizer.
func (r *KeywordRecognizer) Recognize(ctx context.Context, msg EmailMessage) (BillRecognition, error) {
	content := strings.ToLower(msg.Subject + "\n" + msg.Body)

	var confidence float64
	for keyword, weight := range billKeywords {
		if strings.Contains(content, keyword) {
			confidence += weight
		}
	}
	if confidence > 1 {
		confidence = 1
	}

	rec := BillRecognition{Confidence: confidence}
	if confidence < r.minConfidence {
		return rec, nil
	}

	if m := amountPattern.FindStringSubmatch(msg.Body); m != nil {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			rec.Amount = amount
			rec.Currency = "USD"
		}
	}
	if rec.Amount == 0 {
		// A bill without a parseable amount produces no transaction.
		return rec, nil
	}

	rec.IsBill = true
	if m := dueDatePattern.FindStringSubmatch(msg.Body); m != nil {
		rec.DueDate = m[1]
	}
	for keyword, billType := range billTypeKeywords {
		if strings.Contains(content, keyword) {
			rec.BillType = billType
			break
		}
	}
	rec.Merchant = strings.TrimSpace(strings.Split(msg.From, "<")[0])
	return rec, nil
}

// Package report implements the per-session report document: the conversation
// ledger, the data ledger, and the rules for reading them back.
package report

import "strings"

// AnswerClass classifies a collected value for the answered-check.
type AnswerClass int

const (
	// AnswerEmpty means the value carries no information (missing answer).
	AnswerEmpty AnswerClass = iota
	// AnswerMeaningful means the value is a substantive answer.
	AnswerMeaningful
	// AnswerNoneEquivalent means the value is a recognized "nothing to report"
	// phrase, which counts as a deliberate answer rather than a missing one.
	AnswerNoneEquivalent
)

// noneExactTokens match the whole trimmed value, case-insensitive.
var noneExactTokens = []string{
	"none",
	"no",
	"нет",
}

// noneSubstringTokens match anywhere in the value, case-insensitive.
var noneSubstringTokens = []string{
	"no problems",
	"нет проблем",
	"no obstacles",
	"нет препятствий",
}

// emptyLiterals are serialized forms that carry no data.
var emptyLiterals = map[string]bool{
	"":     true,
	"{}":   true,
	"null": true,
}

// ClassifyAnswer classifies a raw value. For AnswerNoneEquivalent the matched
// token is returned alongside the class; otherwise the token is empty.
func ClassifyAnswer(value string) (AnswerClass, string) {
	trimmed := strings.TrimSpace(value)
	if emptyLiterals[trimmed] {
		return AnswerEmpty, ""
	}
	lowered := strings.ToLower(trimmed)
	for _, token := range noneExactTokens {
		if lowered == token {
			return AnswerNoneEquivalent, token
		}
	}
	for _, token := range noneSubstringTokens {
		if strings.Contains(lowered, token) {
			return AnswerNoneEquivalent, token
		}
	}
	return AnswerMeaningful, ""
}

// IsUsableAnswer reports whether a value should be stored and counted as an
// answer: meaningful content and none-equivalent phrases qualify, empty
// values do not.
func IsUsableAnswer(value string) bool {
	class, _ := ClassifyAnswer(value)
	return class != AnswerEmpty
}

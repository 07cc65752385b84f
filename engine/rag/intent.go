package rag

import "strings"

// Intent classifies what kind of reply a prompt should get.
type Intent int

const (
	// IntentDocumentQuery means the prompt should be answered from
	// retrieved document context.
	IntentDocumentQuery Intent = iota
	// IntentGeneric means the prompt is small talk or too vague to ground
	// in documents, so the model answers directly.
	IntentGeneric
)

func (i Intent) String() string {
	if i == IntentGeneric {
		return "generic"
	}
	return "document_query"
}

// genericPhrases are prompts that should bypass retrieval context.
var genericPhrases = []string{
	"hi", "hello", "hey", "how are you", "what", "who are you",
	"thanks", "thank you", "good morning", "good afternoon", "good evening",
}

// Classify decides whether a prompt is generic chat. A prompt is generic
// when it exactly matches a known phrase, or when it is at most two words
// and contains one.
func Classify(prompt string) Intent {
	q := strings.ToLower(strings.TrimSpace(prompt))
	short := len(strings.Fields(q)) <= 2
	for _, phrase := range genericPhrases {
		if phrase == q || (short && strings.Contains(q, phrase)) {
			return IntentGeneric
		}
	}
	return IntentDocumentQuery
}

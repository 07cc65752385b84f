package rag

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		prompt string
		want   Intent
	}{
		{"hello", IntentGeneric},
		{"Hello", IntentGeneric},
		{"  hey  ", IntentGeneric},
		{"how are you", IntentGeneric},
		{"thanks", IntentGeneric},
		{"good morning", IntentGeneric},
		{"what is", IntentGeneric},    // two words containing "what"
		{"hi there", IntentGeneric},   // two words containing "hi"
		{"what is the invoice total", IntentDocumentQuery},
		{"summarize the contract terms", IntentDocumentQuery},
		{"who signed the agreement", IntentDocumentQuery},
		{"refund policy", IntentDocumentQuery},
	}

	for _, tt := range tests {
		if got := Classify(tt.prompt); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.prompt, got, tt.want)
		}
	}
}

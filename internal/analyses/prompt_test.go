package analyses

import (
	"strings"
	"testing"
)

func TestBuildPromptIsDeterministic(t *testing.T) {
	a := BuildPrompt("contract body", "nda.txt")
	b := BuildPrompt("contract body", "nda.txt")
	if a != b {
		t.Fatalf("expected identical prompts")
	}
	if !strings.Contains(a, "Document: nda.txt") || !strings.Contains(a, "Content: contract body") {
		t.Fatalf("prompt missing file name or content")
	}
}

func TestBuildPromptListsSchemaKeys(t *testing.T) {
	prompt := BuildPrompt("x", "f")
	keys := []string{
		"contractType", "parties", "obligations", "keyTerms", "importantDates",
		"effectiveDate", "expirationDate", "otherDates", "paymentTerms", "terminationClauses",
		"renewalTerms", "governingLaw", "signatureBlocks", "exhibits", "concerningPoints",
		"missingOrAmbiguousTerms", "riskLevel", "overallSummary",
	}
	for _, k := range keys {
		if !strings.Contains(prompt, `"`+k+`"`) {
			t.Fatalf("prompt missing key %q", k)
		}
	}
}

func TestBuildPromptTruncatesAtTenThousandChars(t *testing.T) {
	head := strings.Repeat("é", MaxPromptChars)
	prompt := BuildPrompt(head+"TAIL-MARKER", "f")
	if strings.Contains(prompt, "TAIL-MARKER") {
		t.Fatalf("expected text beyond %d chars to be dropped", MaxPromptChars)
	}
	if !strings.Contains(prompt, head) {
		t.Fatalf("expected the first %d chars to be kept", MaxPromptChars)
	}

	exact := strings.Repeat("a", MaxPromptChars)
	if got := truncateChars(exact, MaxPromptChars); got != exact {
		t.Fatalf("text at the limit must be unchanged")
	}
}

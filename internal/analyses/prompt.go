package analyses

import (
	"fmt"
	"unicode/utf8"
)

// MaxPromptChars is the number of characters of document text sent to the model.
const MaxPromptChars = 10000

const promptTemplate = `Analyze this contract document and provide a detailed analysis focusing on the actual contract terms and conditions. Ignore document metadata and focus on the legal content.

Document: %s
Content: %s

Provide a comprehensive analysis including:
- Type of contract (e.g., Employment, NDA, Service Agreement)
- All parties involved and their roles
- All obligations and responsibilities of each party
- Key terms and conditions
- Important dates and durations (list all dates)
- Payment terms (all monetary amounts and currencies)
- Termination clauses
- Renewal or extension terms
- Governing law or jurisdiction
- Signature blocks and signatories
- Any referenced exhibits or attachments
- Any unusual, missing, or ambiguous clauses or terms
- Overall risk assessment

IMPORTANT: Your response MUST be a valid JSON object with NO additional text before or after. Use this exact structure:

{
  "contractType": "[Type of contract]",
  "parties": [
    { "name": "Party 1", "role": "[role]" },
    { "name": "Party 2", "role": "[role]" }
  ],
  "obligations": ["obligation 1", "obligation 2"],
  "keyTerms": ["term 1", "term 2"],
  "importantDates": {
    "effectiveDate": "[date]",
    "expirationDate": "[date]",
    "otherDates": ["date1", "date2"]
  },
  "paymentTerms": "[description]",
  "terminationClauses": ["clause 1", "clause 2"],
  "renewalTerms": "[description]",
  "governingLaw": "[jurisdiction]",
  "signatureBlocks": ["signatory 1", "signatory 2"],
  "exhibits": ["exhibit 1", "exhibit 2"],
  "concerningPoints": ["point 1", "point 2"],
  "missingOrAmbiguousTerms": ["term 1", "term 2"],
  "riskLevel": "Low",
  "overallSummary": "[2-3 sentence summary]"
}

For the "missingOrAmbiguousTerms" array:
- ONLY include fields, clauses, or terms that are specifically required, referenced, or implied by this contract's type and content.
- Do NOT include generic legal terms or boilerplate clauses that are not relevant to this contract.
- Do NOT guess or fill in information that is not clearly stated. If a field is not found or is unclear, include it in this array.

"riskLevel" must be exactly one of "Low", "Medium" or "High".

Formatting rules:
- Escape every newline inside a string value as \n and every double quote as \".
- If the response would be too long, omit optional fields entirely rather than cutting a string value short.
- Return only the JSON object.`

// BuildPrompt renders the analysis prompt. Only the first MaxPromptChars
// characters of text are embedded.
func BuildPrompt(text, fileName string) string {
	return fmt.Sprintf(promptTemplate, fileName, truncateChars(text, MaxPromptChars))
}

func truncateChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

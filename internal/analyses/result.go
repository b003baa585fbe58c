package analyses

// Risk levels accepted in an AnalysisResult.
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// Party is a contracting party.
type Party struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Summary holds the rendered summary points.
type Summary struct {
	Points                  []string `json:"points"`
	ContractType            string   `json:"contractType,omitempty"`
	MissingOrAmbiguousTerms []string `json:"missingOrAmbiguousTerms"`
}

// Field is a named contract field and whether the document fills it.
type Field struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// AnalysisResult is the stable output of a contract analysis.
type AnalysisResult struct {
	ID                      string            `json:"id"`
	FileName                string            `json:"fileName"`
	FileSize                int64             `json:"fileSize"`
	AnalysisDate            string            `json:"analysisDate"`
	DocumentType            string            `json:"documentType"`
	ContractType            string            `json:"contractType,omitempty"`
	Summary                 Summary           `json:"summary"`
	KeyTerms                []string          `json:"keyTerms"`
	Parties                 []Party           `json:"parties"`
	ImportantDates          map[string]string `json:"importantDates"`
	PaymentTerms            string            `json:"paymentTerms,omitempty"`
	TerminationClauses      []string          `json:"terminationClauses"`
	ConcerningPoints        []string          `json:"concerningPoints"`
	OverallSummary          string            `json:"overallSummary,omitempty"`
	MissingOrAmbiguousTerms []string          `json:"missingOrAmbiguousTerms"`
	Obligations             []string          `json:"obligations"`
	RenewalTerms            string            `json:"renewalTerms,omitempty"`
	GoverningLaw            string            `json:"governingLaw,omitempty"`
	SignatureBlocks         []string          `json:"signatureBlocks"`
	Exhibits                []string          `json:"exhibits"`
	RiskLevel               string            `json:"riskLevel"`
	CompletionScore         float64           `json:"completionScore"`
	Fields                  []Field           `json:"fields"`
}

// PartyNames returns the party names in order.
func (r AnalysisResult) PartyNames() []string {
	names := make([]string, 0, len(r.Parties))
	for _, p := range r.Parties {
		names = append(names, p.Name)
	}
	return names
}

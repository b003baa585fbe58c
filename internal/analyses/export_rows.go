package analyses

import (
	"fmt"
	"strconv"
	"strings"

	"contract-analyzer/internal/export"
)

// ExportRows flattens the result into label/value rows for spreadsheets.
func (r AnalysisResult) ExportRows() []export.Row {
	parties := make([]string, 0, len(r.Parties))
	for _, p := range r.Parties {
		if p.Role != "" {
			parties = append(parties, fmt.Sprintf("%s (%s)", p.Name, p.Role))
			continue
		}
		parties = append(parties, p.Name)
	}
	dates := make([]string, 0, len(r.ImportantDates))
	for _, k := range orderedKeys(r.ImportantDates) {
		dates = append(dates, k+": "+r.ImportantDates[k])
	}

	rows := []export.Row{
		{Label: "File Name", Value: r.FileName},
		{Label: "File Size", Value: strconv.FormatInt(r.FileSize, 10)},
		{Label: "Analysis Date", Value: r.AnalysisDate},
		{Label: "Document Type", Value: r.DocumentType},
		{Label: "Contract Type", Value: r.ContractType},
		{Label: "Risk Level", Value: r.RiskLevel},
		{Label: "Completion Score", Value: strconv.FormatFloat(r.CompletionScore, 'f', -1, 64)},
		{Label: "Parties", Value: strings.Join(parties, "\n")},
		{Label: "Important Dates", Value: strings.Join(dates, "\n")},
		{Label: "Payment Terms", Value: r.PaymentTerms},
		{Label: "Key Terms", Value: strings.Join(r.KeyTerms, "\n")},
		{Label: "Obligations", Value: strings.Join(r.Obligations, "\n")},
		{Label: "Termination Clauses", Value: strings.Join(r.TerminationClauses, "\n")},
		{Label: "Renewal Terms", Value: r.RenewalTerms},
		{Label: "Governing Law", Value: r.GoverningLaw},
		{Label: "Signature Blocks", Value: strings.Join(r.SignatureBlocks, "\n")},
		{Label: "Exhibits", Value: strings.Join(r.Exhibits, "\n")},
		{Label: "Points of Concern", Value: strings.Join(r.ConcerningPoints, "\n")},
		{Label: "Missing or Ambiguous Terms", Value: strings.Join(r.MissingOrAmbiguousTerms, "\n")},
		{Label: "Summary", Value: r.OverallSummary},
	}
	return rows
}

package analyses

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	noSummaryPoint         = "No contract information could be extracted."
	defaultDocumentType    = "Document"
	defaultCompletionScore = 0.5
	isoMillis              = "2006-01-02T15:04:05.000Z"
)

// dateKeyOrder fixes the rendering order of well-known date keys.
var dateKeyOrder = []string{"effectiveDate", "expirationDate", "otherDates"}

// FileMeta is the provenance of the uploaded file.
type FileMeta struct {
	FileName string
	FileSize int64
}

// AssembleResult maps loosely typed model output onto AnalysisResult. It
// never fails: missing or malformed fields get defaults.
func AssembleResult(parsed map[string]any, meta FileMeta, now time.Time, newID func() string) AnalysisResult {
	if parsed == nil {
		parsed = map[string]any{}
	}

	contractType := stringValue(parsed["contractType"])
	parties := partyList(parsed["parties"])
	dates := dateMap(parsed["importantDates"])
	missing := stringList(parsed["missingOrAmbiguousTerms"])

	result := AnalysisResult{
		ID:                      newID(),
		FileName:                meta.FileName,
		FileSize:                meta.FileSize,
		AnalysisDate:            now.UTC().Format(isoMillis),
		DocumentType:            defaultDocumentType,
		ContractType:            contractType,
		KeyTerms:                stringList(parsed["keyTerms"]),
		Parties:                 parties,
		ImportantDates:          dates,
		PaymentTerms:            flatten(parsed["paymentTerms"]),
		TerminationClauses:      stringList(parsed["terminationClauses"]),
		ConcerningPoints:        stringList(parsed["concerningPoints"]),
		OverallSummary:          stringValue(parsed["overallSummary"]),
		MissingOrAmbiguousTerms: missing,
		Obligations:             stringList(parsed["obligations"]),
		RenewalTerms:            flatten(parsed["renewalTerms"]),
		GoverningLaw:            flatten(parsed["governingLaw"]),
		SignatureBlocks:         stringList(parsed["signatureBlocks"]),
		Exhibits:                stringList(parsed["exhibits"]),
		RiskLevel:               riskLevel(parsed["riskLevel"]),
		CompletionScore:         completionScore(parsed["completionScore"]),
		Fields:                  fieldList(parsed["fields"]),
	}
	if docType := stringValue(parsed["documentType"]); docType != "" {
		result.DocumentType = docType
	}
	result.Summary = Summary{
		Points:                  summaryPoints(parsed, result),
		ContractType:            contractType,
		MissingOrAmbiguousTerms: missing,
	}
	return result
}

func summaryPoints(parsed map[string]any, r AnalysisResult) []string {
	var points []string
	if r.ContractType != "" {
		points = append(points, "Contract Type: "+r.ContractType)
	}
	if len(r.Parties) > 0 {
		points = append(points, "Parties: "+strings.Join(r.PartyNames(), ", "))
	}
	points = appendMapSection(points, "Important Dates", r.ImportantDates)
	points = appendSection(points, "Payment Terms", parsed["paymentTerms"])
	points = appendListSection(points, "Key Terms", r.KeyTerms)
	points = appendListSection(points, "Termination Clauses", r.TerminationClauses)
	points = appendListSection(points, "Points of Concern", r.ConcerningPoints)
	if r.OverallSummary != "" {
		points = appendListSection(points, "Summary", []string{r.OverallSummary})
	}
	if len(points) == 0 {
		points = []string{noSummaryPoint}
	}
	return points
}

func appendSection(points []string, title string, v any) []string {
	switch t := v.(type) {
	case map[string]any:
		return appendMapSection(points, title, dateMap(t))
	case []any:
		return appendListSection(points, title, stringList(t))
	default:
		if s := flatten(v); s != "" {
			return appendListSection(points, title, []string{s})
		}
		return points
	}
}

func appendListSection(points []string, title string, items []string) []string {
	if len(items) == 0 {
		return points
	}
	points = append(points, "\n"+title+":")
	for _, item := range items {
		points = append(points, "• "+item)
	}
	return points
}

func appendMapSection(points []string, title string, m map[string]string) []string {
	if len(m) == 0 {
		return points
	}
	points = append(points, "\n"+title+":")
	for _, key := range orderedKeys(m) {
		points = append(points, fmt.Sprintf("• %s: %s", key, m[key]))
	}
	return points
}

func orderedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range dateKeyOrder {
		if _, ok := m[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func riskLevel(v any) string {
	switch s := stringValue(v); s {
	case RiskLow, RiskMedium, RiskHigh:
		return s
	default:
		return RiskMedium
	}
}

func completionScore(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return defaultCompletionScore
		}
		f = parsed
	default:
		return defaultCompletionScore
	}
	if math.IsNaN(f) {
		return defaultCompletionScore
	}
	return math.Min(1, math.Max(0, f))
}

func partyList(v any) []Party {
	items, _ := v.([]any)
	out := make([]Party, 0, len(items))
	for _, item := range items {
		switch p := item.(type) {
		case string:
			if name := strings.TrimSpace(p); name != "" {
				out = append(out, Party{Name: name})
			}
		case map[string]any:
			name := stringValue(p["name"])
			if name == "" {
				continue
			}
			out = append(out, Party{Name: name, Role: stringValue(p["role"])})
		}
	}
	return out
}

func fieldList(v any) []Field {
	items, _ := v.([]any)
	out := make([]Field, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := stringValue(m["name"])
		if name == "" {
			continue
		}
		out = append(out, Field{
			Name:        name,
			Status:      stringValue(m["status"]),
			Value:       flatten(m["value"]),
			Description: stringValue(m["description"]),
		})
	}
	return out
}

// stringList coerces v to a list of non-empty strings. Non-list values yield
// an empty list.
func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := flatten(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dateMap(v any) map[string]string {
	out := map[string]string{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, val := range m {
		if s := flatten(val); s != "" {
			out[k] = s
		}
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// flatten renders any JSON value as a single display string.
func flatten(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case []any:
		return strings.Join(stringList(t), ", ")
	case map[string]any:
		m := dateMap(t)
		parts := make([]string, 0, len(m))
		for _, k := range orderedKeys(m) {
			parts = append(parts, k+": "+m[k])
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(t)
	}
}

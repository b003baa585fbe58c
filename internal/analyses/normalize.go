package analyses

import (
	"encoding/json"
	"strings"

	"contract-analyzer/internal/apperr"
)

// recognizer extracts the model text from one envelope shape. ok is false
// when raw is not that shape.
type recognizer func(raw json.RawMessage) (text string, ok bool)

// recognizers are tried in priority order.
var recognizers = []recognizer{
	candidateListText,
	choiceListText,
	directText,
	rawStringText,
	stringifiedEnvelope,
}

// NormalizeResponse reduces any supported backend envelope to the model's text.
func NormalizeResponse(raw json.RawMessage) (string, error) {
	for _, recognize := range recognizers {
		text, ok := recognize(raw)
		if !ok {
			continue
		}
		if strings.TrimSpace(text) == "" {
			break
		}
		return text, nil
	}
	return "", apperr.New(apperr.KindEmptyResponse, "Empty response from AI", "")
}

func candidateListText(raw json.RawMessage) (string, bool) {
	var env struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Candidates == nil {
		return "", false
	}
	if len(env.Candidates) == 0 || len(env.Candidates[0].Content.Parts) == 0 {
		return "", true
	}
	return env.Candidates[0].Content.Parts[0].Text, true
}

func choiceListText(raw json.RawMessage) (string, bool) {
	var env struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Choices == nil {
		return "", false
	}
	if len(env.Choices) == 0 {
		return "", true
	}
	first := env.Choices[0]
	if first.Message.Content != "" {
		return first.Message.Content, true
	}
	return first.Text, true
}

func directText(raw json.RawMessage) (string, bool) {
	var env struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &env); err != nil || env.Text == nil {
		return "", false
	}
	return *env.Text, true
}

func rawStringText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func stringifiedEnvelope(raw json.RawMessage) (string, bool) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return "", true
	}
	return text, true
}

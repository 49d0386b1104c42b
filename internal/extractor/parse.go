package extractor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/model"
)

var (
	fencedRe       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	objectRe       = regexp.MustCompile(`(?s)\{.*\}`)
	fenceOpenRe    = regexp.MustCompile("(?i)^```(?:json)?")
	fenceCloseRe   = regexp.MustCompile("```$")
	lineCommentRe  = regexp.MustCompile(`(?m)(^|[^:"\\])//.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe      = regexp.MustCompile(`([,{]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)\s*`)
)

// ParseResponse decodes the JSON object in a model response. It accepts a
// fenced block or bare object, then retries with common syntax repairs, then
// falls back to the first balanced object that decodes.
func ParseResponse(text string) (*model.ScenarioExtraction, error) {
	candidate, ok := candidateJSON(text)
	if !ok {
		return nil, apierrors.LLMParse("no JSON found in response", nil)
	}

	out, firstErr := decodeObject(candidate)
	if firstErr == nil {
		return out, nil
	}
	if out, err := decodeObject(RepairJSON(candidate)); err == nil {
		return out, nil
	}

	for _, segment := range balancedObjects(text) {
		if out, err := decodeObject(segment); err == nil {
			return out, nil
		}
		if out, err := decodeObject(RepairJSON(segment)); err == nil {
			return out, nil
		}
	}
	return nil, apierrors.LLMParse("failed to parse LLM JSON after repairs", firstErr)
}

func candidateJSON(text string) (string, bool) {
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	if m := objectRe.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

func decodeObject(s string) (*model.ScenarioExtraction, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, fmt.Errorf("not a JSON object")
	}
	var out model.ScenarioExtraction
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RepairJSON fixes the syntax slips models make most often: code fences,
// comments, trailing commas and unquoted keys.
func RepairJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
		s = strings.TrimSpace(fenceOpenRe.ReplaceAllString(s, ""))
		s = strings.TrimSpace(fenceCloseRe.ReplaceAllString(s, ""))
	}
	s = lineCommentRe.ReplaceAllString(s, "$1")
	s = blockCommentRe.ReplaceAllString(s, "")
	s = trailingComma.ReplaceAllString(s, "$1")
	s = bareKeyRe.ReplaceAllString(s, `$1"$2"$3 `)
	return s
}

// balancedObjects returns every top-level {...} segment of text in order.
func balancedObjects(text string) []string {
	var (
		out      []string
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				out = append(out, text[start:i+1])
				start = -1
			}
		}
	}
	return out
}

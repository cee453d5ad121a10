// Package extract recovers a structured JSON object from free-form
// generative model output. Models frequently wrap their JSON in markdown
// fences, surround it with prose, or truncate it mid-object; this package
// locates the best-guess candidate, attempts a strict decode, and falls
// back to a small fixed set of textual repair heuristics.
package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"go-vision-analyzer/internal/logger"
)

// Result is the structured object recovered from model output.
type Result map[string]interface{}

// ErrRepairFailed is returned when the candidate is not valid JSON and
// none of the repair heuristics produce a decodable object.
var ErrRepairFailed = errors.New("model output is not valid JSON and repair failed")

// Locate reduces arbitrary response text to the best-guess JSON object
// substring. Fence markers are removed everywhere in the text, then the
// span from the first '{' to the last '}' is taken greedily. The span is
// deliberately not brace-balanced; over-capture is tolerated and handled
// by the repair heuristics downstream. When no span exists the trimmed
// text is returned unchanged so the failure is classified by the caller
// rather than hidden here.
func Locate(text string) string {
	text = strings.TrimSpace(text)

	// Textual replace, not a structural parse: markers can appear
	// anywhere, not only at the boundaries.
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return strings.TrimSpace(text[start : end+1])
		}
	}
	return text
}

// Decode attempts a strict parse of the candidate into a JSON object.
func Decode(candidate string) (Result, error) {
	var out Result
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Repair applies two independent heuristics to a candidate that failed
// strict decoding, each validated by a full decode attempt. Both are
// tried against the original candidate, not chained. Partial or
// best-effort structures are never returned.
func Repair(candidate string) (Result, error) {
	// Heuristic 1: a single missing closing brace, the usual shape of
	// streamed output cut short.
	if strings.Count(candidate, "{") == strings.Count(candidate, "}")+1 {
		if out, err := Decode(candidate + "}"); err == nil {
			return out, nil
		}
	}

	// Heuristic 2: trailing commas before a closing brace or bracket,
	// rewritten in a single pass.
	cleaned := strings.ReplaceAll(candidate, ",}", "}")
	cleaned = strings.ReplaceAll(cleaned, ",]", "]")
	if out, err := Decode(cleaned); err == nil {
		return out, nil
	}

	return nil, ErrRepairFailed
}

// Parse runs the full recovery pipeline over raw model text: locate a
// candidate, strict-decode it, and on failure attempt repair. The boolean
// reports whether a repair heuristic was needed. Parse is a pure function
// of the input text.
func Parse(text string) (Result, bool, error) {
	candidate := Locate(text)

	out, err := Decode(candidate)
	if err == nil {
		return out, false, nil
	}

	logger.WithField("candidate_len", len(candidate)).Debug("Strict decode failed, attempting repair")

	out, repairErr := Repair(candidate)
	if repairErr != nil {
		// Raw text stays out of the returned error; log it for diagnosis
		logger.WithError(err).WithField("raw_text", text).Error("JSON repair failed")
		return nil, false, repairErr
	}
	return out, true, nil
}

package core

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Language models asked for JSON still return loosely-quoted dict syntax or
// wrap the object in prose. extractJSONObject recovers a JSON object from
// model output using three explicit tiers:
//
//  1. strict: the whole text is a JSON object
//  2. lenient: the whole text is a Python-style dict (single quotes,
//     True/False/None literals)
//  3. embedded: the first {...} block in the text, tried strict then lenient
//
// It returns false when no tier yields an object.
func extractJSONObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	if obj, ok := strictObject(text); ok {
		return obj, true
	}
	if obj, ok := lenientObject(text); ok {
		return obj, true
	}

	block := objectBlockRe.FindString(text)
	if block == "" {
		return nil, false
	}
	if obj, ok := strictObject(block); ok {
		return obj, true
	}
	return lenientObject(block)
}

// objectBlockRe grabs the widest {...} span so nested objects stay intact.
var objectBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

func strictObject(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

var (
	pyTrueRe  = regexp.MustCompile(`\bTrue\b`)
	pyFalseRe = regexp.MustCompile(`\bFalse\b`)
	pyNoneRe  = regexp.MustCompile(`\bNone\b`)
)

// lenientObject converts Python dict literal syntax to JSON and retries the
// strict parse. The quote swap is best effort: an apostrophe inside a value
// defeats it, which is acceptable for a recovery tier.
func lenientObject(text string) (map[string]any, bool) {
	converted := strings.ReplaceAll(text, "'", `"`)
	converted = pyTrueRe.ReplaceAllString(converted, "true")
	converted = pyFalseRe.ReplaceAllString(converted, "false")
	converted = pyNoneRe.ReplaceAllString(converted, "null")
	return strictObject(converted)
}

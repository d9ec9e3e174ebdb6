package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Rutuja-07-code/pharma-agent-ai/internal/llm"
	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// ErrServiceUnavailable marks an extraction failure caused by the language
// model being unreachable, as opposed to unparseable output.
var ErrServiceUnavailable = errors.New("LLM service unavailable")

// ParseError reports model output that could not be turned into an order.
// RawOutput carries the model text for the controller to surface verbatim.
type ParseError struct {
	Reason    string
	RawOutput string
}

func (e *ParseError) Error() string { return e.Reason }

// Extractor turns a raw user message into a structured order via a single
// temperature-zero completion call. It performs no retries; the controller
// surfaces failures to the user as one turn's reply.
type Extractor struct {
	LLM llm.Client
}

// NewExtractor constructs an Extractor around the given completion client.
func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{LLM: client}
}

// Extract parses an order out of the message. It returns
// ErrServiceUnavailable when the model cannot be reached and a *ParseError
// when the output holds no usable JSON or misses required fields.
func (e *Extractor) Extract(ctx context.Context, message string) (pkg.Order, error) {
	if e.LLM == nil {
		return pkg.Order{}, fmt.Errorf("%w: no client configured", ErrServiceUnavailable)
	}

	prompt := fmt.Sprintf(ExtractionPromptTemplate, message)
	out, err := e.LLM.CompleteJSON(ctx, ExtractionSystemPrompt, prompt)
	if err != nil {
		return pkg.Order{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	parsed, ok := extractJSONObject(out)
	if !ok {
		return pkg.Order{}, &ParseError{Reason: "No valid JSON returned by model", RawOutput: out}
	}
	return normalizeOrder(parsed, out)
}

// normalizeOrder maps the model's loose key set onto an Order. Models name
// the medicine field inconsistently, so a few aliases are accepted.
func normalizeOrder(parsed map[string]any, raw string) (pkg.Order, error) {
	name := firstString(parsed, "medicine_name", "medicine", "drug_name")
	if name == "" {
		return pkg.Order{}, &ParseError{Reason: "Missing medicine_name in model output", RawOutput: raw}
	}

	qty, ok := coerceInt(parsed["quantity"])
	if !ok || qty <= 0 {
		return pkg.Order{}, &ParseError{Reason: "Missing or invalid quantity in model output", RawOutput: raw}
	}

	unit := strings.ToLower(firstString(parsed, "unit"))
	if unit == "" {
		unit = "strip"
	}

	return pkg.Order{
		MedicineName: strings.TrimSpace(name),
		Quantity:     qty,
		Unit:         unit,
	}, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Package normalize reduces a raw ToolResult plus the ToolCall that
// produced it into a compact, LLM-friendly Observation: a one-line
// summary, a bounded bag of key facts, and affordance hints the planner
// can act on without re-parsing the tool's raw output.
//
// Normalize is pure and deterministic: same inputs, same Observation,
// every time. It performs no I/O and holds no state.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/haasonsaas/agentcore/pkg/contracts"
)

// maxScalarFields bounds how many top-level scalar fields of an object
// result are copied into KeyFacts, keeping the digest small.
const maxScalarFields = 8

// paginationKeys are the field names that mark a result shape as
// paginated, regardless of tool.
var paginationKeys = []string{"next_page", "has_more", "cursor", "next_cursor", "page_token"}

// Normalize converts call + result into an Observation.
func Normalize(call contracts.ToolCall, result contracts.ToolResult) contracts.Observation {
	rawCopy := result
	obs := contracts.Observation{
		ToolCallID: result.ToolCallID,
		Summary:    summarize(call.ToolName, result),
		KeyFacts:   keyFacts(result),
		Raw:        &rawCopy,
	}
	obs.Affordances = affordances(result, obs.KeyFacts)
	return obs
}

func summarize(toolName string, result contracts.ToolResult) string {
	if !result.Ok {
		detail := ""
		if result.ErrorDetails != nil {
			detail = result.ErrorDetails.Message
		}
		return fmt.Sprintf("Tool '%s' failed: %s - %s", toolName, result.ErrorCode, detail)
	}
	if len(result.Output) == 0 || string(result.Output) == "null" {
		return fmt.Sprintf("Tool '%s' completed with no data", toolName)
	}
	return fmt.Sprintf("Tool '%s' executed successfully", toolName)
}

func keyFacts(result contracts.ToolResult) map[string]string {
	facts := map[string]string{
		"execution_time_ms": fmt.Sprintf("%.2f", float64(result.Latency.Microseconds())/1000.0),
		"attempt":           fmt.Sprintf("%d", result.Attempt),
	}

	if len(result.Output) == 0 {
		return facts
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(result.Output, &asObject); err == nil {
		addScalarFields(facts, asObject, "")
		return facts
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(result.Output, &asArray); err == nil {
		facts["result_count"] = fmt.Sprintf("%d", len(asArray))
		if len(asArray) > 0 {
			var first map[string]json.RawMessage
			if err := json.Unmarshal(asArray[0], &first); err == nil {
				if id, ok := first["id"]; ok {
					facts["first_id"] = string(id)
				}
			}
		}
	}

	return facts
}

// addScalarFields copies up to maxScalarFields top-level scalar
// (non-object, non-array) values from obj into facts as compact JSON
// literals, in a stable (sorted key) order.
func addScalarFields(facts map[string]string, obj map[string]json.RawMessage, prefix string) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	added := 0
	for _, k := range keys {
		if added >= maxScalarFields {
			break
		}
		v := obj[k]
		if isScalar(v) {
			facts[prefix+k] = string(v)
			added++
		}
	}
}

func isScalar(raw json.RawMessage) bool {
	trimmed := trimLeadingSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '{', '[':
		return false
	default:
		return true
	}
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

func affordances(result contracts.ToolResult, facts map[string]string) []contracts.Affordance {
	var out []contracts.Affordance

	if !result.Ok {
		switch {
		case result.ErrorCode.Retryable():
			out = append(out, contracts.AffordanceRetryWithBackoff)
		case result.ErrorCode == contracts.ErrorInvalidInput:
			out = append(out, contracts.AffordanceFixParameters, contracts.AffordanceAskUserForClarification)
		}
	}

	if isPaginated(result.Output) {
		out = append(out, contracts.AffordanceFetchNextPage, contracts.AffordanceFetchMoreResults, contracts.AffordanceProcessResults)
	}

	out = append(out, contracts.AffordanceUseDifferentTool, contracts.AffordanceAskUserForGuidance)
	return out
}

func isPaginated(output json.RawMessage) bool {
	if len(output) == 0 {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(output, &obj); err != nil {
		return false
	}
	for _, k := range paginationKeys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

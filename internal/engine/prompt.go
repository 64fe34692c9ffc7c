package engine

import (
	"encoding/json"

	"github.com/agentd-dev/agentd/internal/tool"
)

// Corrective user messages injected when the model breaks protocol.
const (
	promptRetryJSON = "Please respond with valid JSON per protocol."
	promptRetryType = "Invalid response. Use type=tool or type=final JSON."
)

// systemPrompt renders the protocol instructions with the registry's
// argument schema inlined as JSON. map marshaling sorts keys, so the
// prompt is deterministic for a given tool set.
func systemPrompt(schema map[string]tool.Spec) string {
	encoded, err := json.Marshal(schema)
	if err != nil {
		encoded = []byte("{}")
	}
	return "You are a capable, careful system agent for Ubuntu servers.\n" +
		"Always respond with strict JSON in one of two forms.\n" +
		`1) Tool call: {"type":"tool", "id":"t1", "tool":<tool_name>, "args":{...}, "note":"short rationale(optional)"}` + "\n" +
		`2) Final answer: {"type":"final", "content":"..."}` + "\n" +
		"Available tools and their args schema: " + string(encoded) +
		"\nRules: Use one tool call at a time. Keep arguments minimal. \n" +
		"Rationales must be high-level and avoid sensitive chain-of-thought. Do not include extra summaries.\n" +
		"Ask for clarification if requirements are ambiguous before running destructive actions."
}

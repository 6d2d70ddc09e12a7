package transcript

// ToolCallSplit is one tool_use entry's share of its request's totals,
// per spec.md 4.E's "marginal cost and input-token split... must sum to
// the request-level totals and must be deterministic" contract.
type ToolCallSplit struct {
	ToolName            string
	MarginalInputTokens int64
	MarginalOutputTokens int64
}

// SplitToolCalls divides one request's input/cache tokens and output
// tokens across its tool_use children. The rule pinned for this port
// (spec.md 4.E leaves the exact split implementation-defined): output
// tokens are divided as evenly as possible, remainder going to the
// earliest calls; all input and cache tokens go to the first tool call,
// since the input context is shared verbatim across every tool_use in
// one request and attributing it once avoids double-counting context.
func SplitToolCalls(req Request) []ToolCallSplit {
	n := len(req.ToolCalls)
	if n == 0 {
		return nil
	}

	totalInput := req.Usage.InputTokens + req.Usage.CacheReadTokens +
		req.Usage.CacheCreation5mTokens + req.Usage.CacheCreation1hTokens

	base := req.Usage.OutputTokens / int64(n)
	remainder := req.Usage.OutputTokens % int64(n)

	out := make([]ToolCallSplit, n)
	for i, tc := range req.ToolCalls {
		share := base
		if int64(i) < remainder {
			share++
		}
		out[i] = ToolCallSplit{ToolName: tc.Name, MarginalOutputTokens: share}
		if i == 0 {
			out[i].MarginalInputTokens = totalInput
		}
	}
	return out
}

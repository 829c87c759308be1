package trace

import "sort"

// ChainView reassembles independent per-execution traces sharing a chain
// correlation id into one ordered view.
type ChainView struct {
	ChainTraceID string           `json:"chain_trace_id"`
	Traces       []ExecutionTrace `json:"traces"`
}

// BuildChainView filters traces to those carrying the given chain id and
// orders them by root span start time. Traces without the id are dropped.
func BuildChainView(chainTraceID string, traces []ExecutionTrace) ChainView {
	view := ChainView{ChainTraceID: chainTraceID}
	for _, t := range traces {
		if t.ChainTraceID == chainTraceID && chainTraceID != "" {
			view.Traces = append(view.Traces, t)
		}
	}
	sort.SliceStable(view.Traces, func(i, j int) bool {
		return view.Traces[i].StartedAt.Before(view.Traces[j].StartedAt)
	})
	return view
}

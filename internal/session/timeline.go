package session

import (
	"github.com/qbit-ai/qbit-console/internal/events"
)

// BuildTimeline turns the ordered block log into a render-ready list:
// adjacent ordinary tool calls collapse into groups, and every sub_agent_*
// tool call is replaced in place by its sub-agent, preserving the original
// interleaving of text, tools and sub-agent invocations.
//
// Matching prefers parent_request_id joins; when no sub-agent in the set
// carries one, matching falls back to strict index order over the
// sub_agent_* calls as encountered. Sub-agents left unmatched at the end of
// the walk (a state-update race) are appended at the end rather than
// dropped.
func BuildTimeline(blocks []events.Block, subAgents []*events.SubAgent) []events.TimelineItem {
	byParent := make(map[string]*events.SubAgent, len(subAgents))
	anyParentIDs := false
	for _, agent := range subAgents {
		if agent == nil {
			continue
		}
		if agent.ParentRequestID != "" {
			anyParentIDs = true
			byParent[agent.ParentRequestID] = agent
		}
	}

	matched := make(map[string]bool, len(subAgents))
	positional := 0 // index into subAgents for the legacy fallback

	var out []events.TimelineItem
	var pending []events.ToolCall

	flush := func() {
		switch len(pending) {
		case 0:
		case 1:
			// A group of one is a plain tool block, not a one-element group.
			call := pending[0]
			out = append(out, events.TimelineItem{Kind: events.TimelineTool, Tool: &call})
		default:
			out = append(out, events.TimelineItem{
				Kind:  events.TimelineToolGroup,
				Group: append([]events.ToolCall(nil), pending...),
			})
		}
		pending = nil
	}

	takeAgent := func(call *events.ToolCall) *events.SubAgent {
		if anyParentIDs {
			agent := byParent[call.ID]
			if agent == nil || matched[agent.AgentID] {
				return nil
			}
			matched[agent.AgentID] = true
			return agent
		}
		// Positional fallback: the Nth sub_agent_* call maps to the Nth
		// sub-agent in start order.
		for positional < len(subAgents) {
			agent := subAgents[positional]
			positional++
			if agent == nil || matched[agent.AgentID] {
				continue
			}
			matched[agent.AgentID] = true
			return agent
		}
		return nil
	}

	for _, block := range blocks {
		switch block.Kind {
		case events.BlockText:
			flush()
			out = append(out, events.TimelineItem{Kind: events.TimelineText, Text: block.Content})
		case events.BlockSystemHooks:
			flush()
			out = append(out, events.TimelineItem{Kind: events.TimelineSystemHooks, Hooks: block.Hooks})
		case events.BlockTool:
			if block.Tool == nil {
				continue
			}
			if block.Tool.IsSubAgent() {
				if agent := takeAgent(block.Tool); agent != nil {
					// Whatever was grouped before the invocation is flushed
					// as its own block; tools after it start a new run. Two
					// halves of a split group are never re-merged.
					flush()
					out = append(out, events.TimelineItem{Kind: events.TimelineSubAgent, SubAgent: agent.Clone()})
					continue
				}
			}
			pending = append(pending, *block.Tool)
		}
	}
	flush()

	for _, agent := range subAgents {
		if agent == nil || matched[agent.AgentID] {
			continue
		}
		out = append(out, events.TimelineItem{Kind: events.TimelineSubAgent, SubAgent: agent.Clone()})
	}
	return out
}

package session

import (
	"strings"

	"github.com/qbit-ai/qbit-console/internal/events"
)

func (e *Engine) handleSubAgentStarted(s *state, ev *events.SubAgentStarted) {
	id := strings.TrimSpace(ev.AgentID)
	if id == "" {
		return
	}
	if existing, ok := s.subAgentByID[id]; ok {
		// A sub-agent never transitions backward; a replayed start must not
		// resurrect a finished agent.
		if existing.Status == events.AgentRunning {
			existing.Task = ev.Task
		}
		return
	}
	agent := &events.SubAgent{
		AgentID:         id,
		AgentName:       ev.AgentName,
		ParentRequestID: s.claimParentRequest(),
		Task:            ev.Task,
		Depth:           ev.Depth,
		Status:          events.AgentRunning,
		StartedAt:       e.now(),
	}
	s.subAgents = append(s.subAgents, agent)
	s.subAgentByID[id] = agent
}

// claimParentRequest binds the newest unclaimed sub_agent_* tool call to the
// sub-agent being created. The binding is fixed for the agent's lifetime.
// Returns "" when no candidate exists (legacy producers), which downstream
// matching treats as the positional-fallback path.
func (s *state) claimParentRequest() string {
	for i := len(s.blocks) - 1; i >= 0; i-- {
		block := s.blocks[i]
		if block.Kind != events.BlockTool || block.Tool == nil || !block.Tool.IsSubAgent() {
			continue
		}
		id := block.Tool.ID
		if _, claimed := s.claimedParents[id]; claimed {
			continue
		}
		if block.Tool.Status == events.ToolCompleted || block.Tool.Status == events.ToolError {
			continue
		}
		s.claimedParents[id] = struct{}{}
		return id
	}
	return ""
}

func (e *Engine) handleSubAgentToolRequest(s *state, ev *events.SubAgentToolRequest) {
	agent, ok := s.subAgentByID[strings.TrimSpace(ev.AgentID)]
	if !ok || agent.Status != events.AgentRunning {
		return
	}
	agent.ToolCalls = append(agent.ToolCalls, events.ToolCall{
		ID:              events.NewID("sub"),
		Name:            ev.ToolName,
		Args:            ev.Args,
		Status:          events.ToolRunning,
		ExecutedByAgent: true,
		Source: events.ToolSource{
			Type:      events.SourceSubAgent,
			AgentID:   agent.AgentID,
			AgentName: agent.AgentName,
		},
	})
}

func (e *Engine) handleSubAgentToolResult(s *state, ev *events.SubAgentToolResult) {
	agent, ok := s.subAgentByID[strings.TrimSpace(ev.AgentID)]
	if !ok {
		return
	}
	// Results carry no request id; settle the newest still-running call with
	// the same tool name.
	for i := len(agent.ToolCalls) - 1; i >= 0; i-- {
		call := &agent.ToolCalls[i]
		if call.Name != ev.ToolName || call.Status != events.ToolRunning {
			continue
		}
		if ev.Success {
			call.Status = events.ToolCompleted
		} else {
			call.Status = events.ToolError
		}
		return
	}
}

func (e *Engine) handleSubAgentCompleted(s *state, ev *events.SubAgentCompleted) {
	agent, ok := s.subAgentByID[strings.TrimSpace(ev.AgentID)]
	if !ok || agent.Status != events.AgentRunning {
		return
	}
	agent.Status = events.AgentCompleted
	agent.Response = ev.Response
	agent.DurationMs = ev.DurationMs
}

func (e *Engine) handleSubAgentError(s *state, ev *events.SubAgentError) {
	agent, ok := s.subAgentByID[strings.TrimSpace(ev.AgentID)]
	if !ok || agent.Status != events.AgentRunning {
		return
	}
	agent.Status = events.AgentErrored
	agent.Error = ev.Error
}

func (e *Engine) handleWorkflowStarted(s *state, ev *events.WorkflowStarted) {
	s.workflow = &events.Workflow{
		WorkflowID:   strings.TrimSpace(ev.WorkflowID),
		WorkflowName: ev.WorkflowName,
	}
}

func (s *state) workflowStep(workflowID string, stepName string) *events.WorkflowStep {
	if s.workflow == nil || s.workflow.WorkflowID != strings.TrimSpace(workflowID) {
		return nil
	}
	for i := range s.workflow.Steps {
		if s.workflow.Steps[i].StepName == stepName {
			return &s.workflow.Steps[i]
		}
	}
	s.workflow.Steps = append(s.workflow.Steps, events.WorkflowStep{
		StepName: stepName,
		Status:   events.StepPending,
	})
	return &s.workflow.Steps[len(s.workflow.Steps)-1]
}

func (e *Engine) handleWorkflowStepStarted(s *state, ev *events.WorkflowStepStarted) {
	step := s.workflowStep(ev.WorkflowID, ev.StepName)
	if step == nil {
		return
	}
	step.Status = events.StepInProgress
	step.StepIndex = ev.StepIndex
	step.TotalSteps = ev.TotalSteps
}

func (e *Engine) handleWorkflowStepCompleted(s *state, ev *events.WorkflowStepCompleted) {
	step := s.workflowStep(ev.WorkflowID, ev.StepName)
	if step == nil {
		return
	}
	step.Status = events.StepCompleted
	step.Output = ev.Output
	step.DurationMs = ev.DurationMs
}

func (e *Engine) handleWorkflowCompleted(s *state, ev *events.WorkflowCompleted) {
	if s.workflow == nil || s.workflow.WorkflowID != strings.TrimSpace(ev.WorkflowID) {
		return
	}
	s.workflow.Done = true
	s.workflow.FinalOutput = ev.FinalOutput
	for i := range s.workflow.Steps {
		if s.workflow.Steps[i].Status == events.StepInProgress {
			s.workflow.Steps[i].Status = events.StepCompleted
		}
	}
}

func (e *Engine) handleWorkflowError(s *state, ev *events.WorkflowError) {
	if s.workflow == nil || s.workflow.WorkflowID != strings.TrimSpace(ev.WorkflowID) {
		return
	}
	s.workflow.Done = true
	s.workflow.Error = ev.Error
	s.workflow.FailedStep = ev.StepName
	if ev.StepName != "" {
		if step := s.workflowStep(ev.WorkflowID, ev.StepName); step != nil {
			step.Status = events.StepError
		}
	}
}

// handlePlanUpdated replaces the plan wholesale when the incoming version is
// strictly greater. Equal versions are rejected: the producer bumps the
// version on every edit, so an equal version is a duplicate delivery.
func (e *Engine) handlePlanUpdated(s *state, ev *events.PlanUpdated) {
	incoming := ev.Plan
	if s.plan != nil && incoming.Version <= s.plan.Version {
		return
	}
	incoming.Summarize()
	s.plan = &incoming
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// printer renders finalized messages as styled lines on stdout. It is the
// plain line-oriented surface; a full-screen UI can replace it by swapping
// the engine's OnMessage hook.
type printer struct {
	out   io.Writer
	width int
}

func newPrinter(out io.Writer) *printer {
	width := 100
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			width = w
		}
	}
	return &printer{out: out, width: width}
}

var (
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Italic(true)
	toolStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	agentStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func (p *printer) printMessage(msg events.Message) {
	switch msg.Role {
	case "system":
		p.writeWrapped("! ", systemStyle, msg.Content)
		return
	default:
	}

	if len(msg.StreamingHistory) == 0 {
		p.writeWrapped("", assistantStyle, msg.Content)
	}
	for _, item := range msg.StreamingHistory {
		p.printItem(item)
	}
	if msg.Workflow != nil {
		p.printWorkflow(msg.Workflow)
	}
	fmt.Fprintln(p.out)
}

func (p *printer) printItem(item events.TimelineItem) {
	switch item.Kind {
	case events.TimelineText:
		p.writeWrapped("", assistantStyle, item.Text)
	case events.TimelineTool:
		if item.Tool != nil {
			p.printTool(*item.Tool, "")
		}
	case events.TimelineToolGroup:
		fmt.Fprintln(p.out, dimStyle.Render(fmt.Sprintf("┌ %d tool calls", len(item.Group))))
		for _, call := range item.Group {
			p.printTool(call, "│ ")
		}
	case events.TimelineSubAgent:
		if item.SubAgent != nil {
			p.printSubAgent(item.SubAgent)
		}
	case events.TimelineSystemHooks:
		for _, hook := range item.Hooks {
			p.writeWrapped("• ", dimStyle, hook.Name+": "+hook.Output)
		}
	}
}

func (p *printer) printTool(call events.ToolCall, indent string) {
	status := dimStyle
	switch call.Status {
	case events.ToolCompleted, events.ToolApprovedAuto:
		status = okStyle
	case events.ToolError:
		status = errStyle
	}
	line := indent + toolStyle.Render(call.Name) + " " + status.Render(string(call.Status))
	fmt.Fprintln(p.out, line)
}

func (p *printer) printSubAgent(agent *events.SubAgent) {
	head := fmt.Sprintf("%s [%s]", agent.AgentName, agent.Status)
	fmt.Fprintln(p.out, agentStyle.Render(head))
	if strings.TrimSpace(agent.Task) != "" {
		p.writeWrapped("  task: ", dimStyle, agent.Task)
	}
	for _, call := range agent.ToolCalls {
		p.printTool(call, "  ")
	}
	if strings.TrimSpace(agent.Response) != "" {
		p.writeWrapped("  ", assistantStyle, agent.Response)
	}
	if strings.TrimSpace(agent.Error) != "" {
		p.writeWrapped("  ", errStyle, agent.Error)
	}
}

func (p *printer) printWorkflow(w *events.Workflow) {
	fmt.Fprintln(p.out, agentStyle.Render("workflow "+w.WorkflowName))
	for _, step := range w.Steps {
		style := dimStyle
		switch step.Status {
		case events.StepCompleted:
			style = okStyle
		case events.StepError:
			style = errStyle
		}
		fmt.Fprintln(p.out, "  "+style.Render(fmt.Sprintf("%s %s", step.StepName, step.Status)))
	}
	if strings.TrimSpace(w.FinalOutput) != "" {
		p.writeWrapped("  ", assistantStyle, w.FinalOutput)
	}
	if strings.TrimSpace(w.Error) != "" {
		p.writeWrapped("  ", errStyle, w.Error)
	}
}

func (p *printer) writeWrapped(prefix string, style lipgloss.Style, text string) {
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return
	}
	prefixWidth := runewidth.StringWidth(prefix)
	contentWidth := p.width - prefixWidth
	if contentWidth < 10 {
		contentWidth = 10
	}
	wrapped := lipgloss.NewStyle().Width(contentWidth).Render(text)

	indent := strings.Repeat(" ", prefixWidth)
	for i, line := range strings.Split(wrapped, "\n") {
		if i == 0 {
			fmt.Fprintln(p.out, style.Render(prefix+line))
			continue
		}
		fmt.Fprintln(p.out, style.Render(indent+line))
	}
}

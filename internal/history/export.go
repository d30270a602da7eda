package history

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/qbit-ai/qbit-console/internal/appinfo"
	"github.com/qbit-ai/qbit-console/internal/events"
)

//go:embed transcript_template.html
var transcriptTemplateFS embed.FS

type transcriptEntry struct {
	Role      string
	Body      template.HTML
	Timestamp string
	Tools     []string
	Command   string
	ExitCode  string
	Output    string
}

type transcriptData struct {
	AppDisplay string
	SessionID  string
	Generated  string
	Entries    []transcriptEntry
}

var (
	transcriptTemplateOnce sync.Once
	transcriptTemplate     *template.Template
	transcriptTemplateErr  error
)

func getTranscriptTemplate() (*template.Template, error) {
	transcriptTemplateOnce.Do(func() {
		b, err := transcriptTemplateFS.ReadFile("transcript_template.html")
		if err != nil {
			transcriptTemplateErr = err
			return
		}
		transcriptTemplate, transcriptTemplateErr = template.New("transcript_template.html").Parse(string(b))
	})
	return transcriptTemplate, transcriptTemplateErr
}

var transcriptMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
)

var transcriptMarkdownMu sync.Mutex

// ExportHTML renders one session's transcript, messages interleaved with its
// settled command blocks by timestamp, as a standalone HTML document.
func ExportHTML(ctx context.Context, store Store, sessionID string) (string, error) {
	if store == nil {
		return "", fmt.Errorf("no store configured")
	}
	msgs, err := store.Messages(ctx, sessionID)
	if err != nil {
		return "", err
	}
	cmds, err := store.Commands(ctx, sessionID)
	if err != nil {
		return "", err
	}

	entries := make([]transcriptEntry, 0, len(msgs)+len(cmds))
	mi, ci := 0, 0
	for mi < len(msgs) || ci < len(cmds) {
		if ci >= len(cmds) || (mi < len(msgs) && !msgs[mi].Timestamp.After(cmds[ci].StartTime)) {
			entries = append(entries, messageEntry(msgs[mi]))
			mi++
			continue
		}
		entries = append(entries, commandEntry(cmds[ci]))
		ci++
	}

	data := transcriptData{
		AppDisplay: appinfo.Display(),
		SessionID:  strings.TrimSpace(sessionID),
		Generated:  time.Now().UTC().Format(time.RFC3339),
		Entries:    entries,
	}
	tmpl, err := getTranscriptTemplate()
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return "", err
	}
	return out.String(), nil
}

func messageEntry(msg events.Message) transcriptEntry {
	entry := transcriptEntry{
		Role:      msg.Role,
		Body:      renderMarkdown(msg.Content),
		Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
	}
	for _, call := range msg.ToolCalls {
		entry.Tools = append(entry.Tools, fmt.Sprintf("%s (%s)", call.Name, call.Status))
	}
	return entry
}

func commandEntry(rec events.CommandBlockRecord) transcriptEntry {
	return transcriptEntry{
		Role:      "terminal",
		Timestamp: rec.StartTime.UTC().Format(time.RFC3339),
		Command:   rec.Command,
		ExitCode:  fmt.Sprintf("%d", rec.ExitCode),
		Output:    rec.Output,
	}
}

func renderMarkdown(body string) template.HTML {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var buf bytes.Buffer
	transcriptMarkdownMu.Lock()
	err := transcriptMarkdown.Convert([]byte(body), &buf)
	transcriptMarkdownMu.Unlock()
	if err != nil {
		escaped := template.HTMLEscapeString(body)
		buf.Reset()
		buf.WriteString("<pre>")
		buf.WriteString(escaped)
		buf.WriteString("</pre>")
	}
	return template.HTML(buf.String())
}

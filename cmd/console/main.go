package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/qbit-ai/qbit-console/internal/appinfo"
	"github.com/qbit-ai/qbit-console/internal/config"
	"github.com/qbit-ai/qbit-console/internal/eventwire"
	"github.com/qbit-ai/qbit-console/internal/events"
	"github.com/qbit-ai/qbit-console/internal/history"
	"github.com/qbit-ai/qbit-console/internal/llm"
	"github.com/qbit-ai/qbit-console/internal/logging"
	"github.com/qbit-ai/qbit-console/internal/session"
	"github.com/qbit-ai/qbit-console/internal/terminal"
)

func main() {
	args := os.Args[1:]
	cmd := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runConsole(args)
	case "export":
		err = runExport(args)
	case "version":
		fmt.Println(appinfo.Display())
	default:
		err = fmt.Errorf("unknown command %q (supported: run, export, version)", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runConsole(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "console.yaml", "path to settings file")
	sessionID := fs.String("session", "local", "session id for local-producer mode")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := logging.Open(cfg.LogFile)
	defer logger.Close()
	logf := logger.Printf

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	out := newPrinter(os.Stdout)
	engine := session.NewEngine(session.Options{
		Store:     store,
		Logf:      logf,
		OnMessage: out.printMessage,
	})
	tracker := terminal.NewTracker(terminal.Options{
		Engine:           engine,
		Store:            store,
		Git:              execGit{},
		Notify:           logNotifier{logf: logf},
		NewPipeline:      terminal.NewCaptureBuffer,
		FulltermCommands: cfg.Terminal.FulltermCommands,
		FastCommands:     cfg.Terminal.FastCommands,
		ProbeDelay:       cfg.Terminal.ProbeDelay(),
		Logf:             logf,
	})
	stopPoller, err := tracker.StartGitPoller(cfg.GitPollEvery())
	if err != nil {
		return err
	}
	defer stopPoller()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatch := func(ctx context.Context, ev events.Event) {
		if cfg.VerboseEvents {
			if raw, err := events.Encode(ev); err == nil {
				logger.Logf(logging.KindEvent, "%s %s", ev.EventKind(), logging.Preview(string(raw), 200))
			}
		}
		engine.HandleEvent(ctx, ev)
		tracker.HandleEvent(ctx, ev)
	}

	if strings.TrimSpace(cfg.EventURL) != "" {
		remote := func(ctx context.Context, ev events.Event) {
			openOnStarted(engine, ev)
			dispatch(ctx, ev)
		}
		sub, err := eventwire.NewSubscriber(eventwire.SubscriberOptions{
			URL:      cfg.EventURL,
			Handlers: []eventwire.Handler{remote},
			Logf:     logf,
		})
		if err != nil {
			return err
		}
		if err := sub.Subscribe(ctx); err != nil {
			return err
		}
		defer sub.Close()

		fmt.Printf("%s attached to %s\n", appinfo.Display(), cfg.EventURL)
		<-ctx.Done()
		return nil
	}

	return runLocal(ctx, cfg, *sessionID, engine, dispatch)
}

// runLocal is the in-process producer loop: each stdin line becomes one
// streaming model turn feeding the same dispatch path as the remote stream.
func runLocal(ctx context.Context, cfg config.Settings, sessionID string, engine *session.Engine, dispatch func(context.Context, events.Event)) error {
	provider, err := llm.ParseProvider(cfg.Provider)
	if err != nil {
		return err
	}
	client := &llm.Client{
		Provider: provider,
		Model:    cfg.Model,
		APIKey:   apiKeyFromEnv(provider),
	}
	engine.OpenSession(sessionID)

	fmt.Printf("%s ready (%s). Type /exit to quit.\n", appinfo.Display(), provider)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" {
			return nil
		}
		err := client.StreamTurn(ctx, llm.TurnRequest{
			SessionID: sessionID,
			Prompt:    line,
		}, func(ev events.Event) {
			dispatch(ctx, ev)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Already surfaced as an error event; keep the loop alive.
			continue
		}
	}
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", "console.yaml", "path to settings file")
	sessionID := fs.String("session", "", "session id to export")
	outPath := fs.String("out", "", "output file (default: stdout)")
	fs.Parse(args)

	if strings.TrimSpace(*sessionID) == "" {
		return fmt.Errorf("--session is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	html, err := history.ExportHTML(context.Background(), store, *sessionID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*outPath) == "" {
		fmt.Println(html)
		return nil
	}
	return os.WriteFile(*outPath, []byte(html), 0o644)
}

func openStore(cfg config.Settings) (history.Store, func(), error) {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return history.NewMemoryStore(), func() {}, nil
	}
	store, err := history.NewRedisStore(cfg.RedisURL, cfg.HistoryTTL())
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

// openOnStarted creates the engine row for a remote session the first time
// its turn starts. Only explicitly tagged turns open sessions; events with no
// attributable session still follow the fallback-then-drop path.
func openOnStarted(engine *session.Engine, ev events.Event) {
	st, ok := ev.(*events.Started)
	if !ok {
		return
	}
	id := strings.TrimSpace(st.Session())
	if id == "" || id == "unknown" {
		return
	}
	engine.OpenSession(id)
}

func apiKeyFromEnv(provider llm.Provider) string {
	if provider == llm.ProviderOpenAI {
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	return strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
}

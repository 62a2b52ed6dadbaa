package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/tickd-io/tickd/internal/agent"
	"github.com/tickd-io/tickd/internal/backend"
	"github.com/tickd-io/tickd/internal/config"
	"github.com/tickd-io/tickd/internal/provider"
	"github.com/tickd-io/tickd/internal/tool"
)

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("v", false, "Verbose logging")
	prompt := flag.String("prompt", "", "Single prompt (omit for interactive)")
	flag.Parse()

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg := config.FromEnv()
	if err := cfg.ValidateAgent(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var prov provider.Provider
	switch cfg.Provider {
	case config.ProviderAnthropic:
		var opts []provider.AnthropicOption
		if cfg.Model != "" {
			opts = append(opts, provider.WithAnthropicModel(cfg.Model))
		}
		prov = provider.NewAnthropic(cfg.AnthropicAPIKey, opts...)
	default:
		var opts []provider.OpenAIOption
		if cfg.Model != "" {
			opts = append(opts, provider.WithOpenAIModel(cfg.Model))
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, provider.WithOpenAIBaseURL(cfg.OpenAIBaseURL))
		}
		prov = provider.NewOpenAI(cfg.OpenAIAPIKey, opts...)
	}

	client := backend.NewClient(cfg.BackendBaseURL, cfg.APIKey, backend.WithLogger(logger))

	reg, err := tool.NewRegistry(tool.TicketTools(client)...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := reg.Verify(tool.TicketToolNames()...); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	a := agent.New(prov, reg)
	a.Logger = logger
	ctx := context.Background()

	if *prompt != "" {
		os.Exit(runOnce(ctx, a, *prompt, os.Stdout, os.Stderr))
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	if interactive {
		fmt.Printf("tickagent — talking to %s via %s\n", cfg.BackendBaseURL, prov.Name())
		fmt.Println("Type 'help' for commands, 'quit' to exit.")
		fmt.Println()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line {
		case "quit", "exit":
			return
		case "help":
			printHelp()
			continue
		case "reset":
			a.Reset()
			fmt.Println("Conversation cleared.")
			continue
		}

		stop := spinner(interactive)
		reply, err := a.Chat(ctx, line)
		stop()
		if err != nil {
			fmt.Fprintln(os.Stderr, renderError(err))
			continue
		}
		fmt.Println(reply)
		fmt.Println()
	}
}

// runOnce handles -prompt mode. Hitting the round cap is a normal outcome,
// not an error: the friendly summary goes to out and the exit code is zero.
// Infrastructural failures go to errw with a nonzero code.
func runOnce(ctx context.Context, a *agent.Agent, prompt string, out, errw io.Writer) int {
	reply, err := a.Chat(ctx, prompt)
	switch {
	case errors.Is(err, agent.ErrRoundLimit):
		fmt.Fprintln(out, renderError(err))
		return 0
	case err != nil:
		fmt.Fprintln(errw, renderError(err))
		return 1
	}
	fmt.Fprintln(out, reply)
	return 0
}

func printHelp() {
	fmt.Println(`Talk to the assistant in plain language, e.g.
  create a ticket titled "VPN down" about losing connection every hour
  show my open tickets
  resolve ticket <id>: replaced the faulty cable

Commands:
  reset   clear the conversation and start over
  help    show this message
  quit    exit`)
}

// renderError turns infrastructural failures into something a person at
// the prompt can act on.
func renderError(err error) string {
	switch {
	case errors.Is(err, agent.ErrRoundLimit):
		return "Sorry, I could not complete that within the allowed steps. Try breaking the request into smaller pieces."
	case errors.Is(err, backend.ErrAuth):
		return "error: the ticket service rejected our API key; check TICKD_API_KEY"
	default:
		return "error: " + err.Error()
	}
}

// spinner prints a lightweight progress indicator while a turn runs, only
// when stdin is a terminal. The returned func stops it and clears the line.
func spinner(interactive bool) func() {
	if !interactive {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		frames := []string{"|", "/", "-", "\\"}
		tick := time.NewTicker(120 * time.Millisecond)
		defer tick.Stop()
		i := 0
		for {
			select {
			case <-done:
				fmt.Print("\r \r")
				return
			case <-tick.C:
				fmt.Printf("\r%s ", frames[i%len(frames)])
				i++
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

// Package main provides the entry point for loom-agent.
//
// loom-agent is Core A's Operator CLI: it runs the autonomous coding
// session orchestrator against a single project directory, driving
// tracker WorkItems through the Agent Driver until a stop sentinel fires.
//
// Usage:
//
//	loom-agent run --project-dir <dir> --spec <spec.json> [flags]
//	loom-agent extend --project-dir <dir> --new-spec <spec.json> [flags]
//	loom-agent status --project-dir <dir>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"path/filepath"

	"github.com/loomwork/loom/internal/logger"
	"github.com/loomwork/loom/pkg/agent"
	"github.com/loomwork/loom/pkg/llm"
	"github.com/loomwork/loom/pkg/orchestra"
	"github.com/loomwork/loom/pkg/retrieval"
	"github.com/loomwork/loom/pkg/sandbox"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/specparse"
	"github.com/loomwork/loom/pkg/tracker"
	"github.com/loomwork/loom/pkg/vectorstore"
	"github.com/loomwork/loom/skills"
	"github.com/loomwork/loom/skills/browser"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "run":
		err = cmdRun(args, false)
	case "extend":
		err = cmdRun(args, true)
	case "status":
		err = cmdStatus(args)
	case "version", "-v", "--version":
		fmt.Printf("loom-agent version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`loom-agent - autonomous coding session orchestrator

Usage:
  loom-agent run --project-dir <dir> --spec <spec.json> [flags]
  loom-agent extend --project-dir <dir> --new-spec <spec.json> [flags]
  loom-agent status --project-dir <dir>
  loom-agent version
  loom-agent help

Flags:
  --project-dir PATH       Project directory (required)
  --spec PATH               Project specification document (run mode)
  --new-spec PATH           Additional feature specification (extend mode)
  --max-iterations N         Stop after N WorkItems (default: 0, unbounded)
  --auto-continue-delay SECS Delay between iterations (default: 3)
  --init-script PATH          Project-relative script CanExecuteInitScript permits
  --model NAME                 LLM model name passed to the provider
  --max-turns N                 Assistant-turn budget per coding session
  --auto-retry                   Reset a failed item to todo instead of leaving it in_progress
  --llm-provider anthropic|ollama   Provider backend (default: anthropic)
  --ollama-url URL              Ollama base URL for the ollama provider
  --requests-per-hour N         Throttle driver invocations (default: unthrottled)
  --data-dir PATH                Ingested corpus directory; enables the retrieval skill
  --screenshot-dir PATH          Browser skill screenshot directory (default: <project-dir>/.loom/screenshots)

Environment:
  llm_oauth_token     OAuth bearer credential for the coding agent LLM (preferred)
  ANTHROPIC_API_KEY   API key for the anthropic provider (fallback if llm_oauth_token is unset)`)
}

func cmdRun(args []string, extend bool) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	projectDir := fs.String("project-dir", "", "project directory")
	specPath := fs.String("spec", "", "project specification document")
	newSpecPath := fs.String("new-spec", "", "additional feature specification")
	maxIterations := fs.Int("max-iterations", 0, "stop after N WorkItems (0 = unbounded)")
	autoContinueDelay := fs.Int("auto-continue-delay", 3, "seconds between iterations")
	requestsPerHour := fs.Int("requests-per-hour", 0, "throttle driver invocations (0 = unthrottled)")
	initScript := fs.String("init-script", "", "project-relative init script path")
	dataDir := fs.String("data-dir", "", "ingested corpus data directory; enables the retrieval skill for library-style sessions")
	screenshotDir := fs.String("screenshot-dir", "", "directory for browser skill screenshots (default: <project-dir>/.loom/screenshots)")
	model := fs.String("model", "", "LLM model name")
	maxTurns := fs.Int("max-turns", 0, "assistant-turn budget per session (0 = default)")
	autoRetry := fs.Bool("auto-retry", false, "reset a failed item to todo instead of leaving it in_progress")
	llmProvider := fs.String("llm-provider", "anthropic", "LLM provider backend")
	ollamaURL := fs.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectDir == "" {
		return fmt.Errorf("--project-dir is required")
	}
	if err := os.MkdirAll(*projectDir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}

	spec := *specPath
	if extend {
		spec = *newSpecPath
		if spec == "" {
			return fmt.Errorf("--new-spec is required for extend")
		}
	} else if spec == "" {
		return fmt.Errorf("--spec is required for run")
	}

	fileTrk, err := tracker.NewFileTracker(*projectDir)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}
	trk := tracker.WithRetry(fileTrk, tracker.DefaultRetryConfig())

	policy := sandbox.New(*projectDir, *initScript)

	shots := *screenshotDir
	if shots == "" {
		shots = filepath.Join(*projectDir, ".loom", "screenshots")
	}
	skillSet, kind := sessionSkills(spec, *dataDir, shots)

	prompt := orchestra.WebCodingPrompt
	if kind == agent.SessionKindLibrary {
		prompt = orchestra.LibraryCodingPrompt
	}

	router := llm.NewRouter(newProvider(*llmProvider, *ollamaURL))
	driver, err := orchestra.NewDriver(router, trk, policy, orchestra.DriverConfig{
		WorkDir:      *projectDir,
		Model:        *model,
		MaxTurns:     *maxTurns,
		SystemPrompt: prompt,
	})
	if err != nil {
		return fmt.Errorf("create driver: %w", err)
	}
	driver.WithSkills(skillSet...)
	driver.ResetOnFailure = *autoRetry

	so := agent.NewSessionOrchestrator(*projectDir, trk, driver, policy)
	so.Kind = kind
	so.MaxIterations = *maxIterations
	so.AutoContinueDelay = time.Duration(*autoContinueDelay) * time.Second
	so.Circuit = agent.NewCircuitBreaker(agent.DriverCircuitConfig())
	if *requestsPerHour > 0 {
		so.Limiter = agent.NewRateLimiter(*requestsPerHour)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reason, err := so.Run(ctx, agent.RunOptions{SpecPath: spec, ExtendMode: extend})
	if err != nil {
		logger.GetLogger().Error().Err(err).Str("stop_reason", string(reason)).Msg("loom-agent: session ended with error")
		return err
	}

	fmt.Printf("stopped: %s (iterations: %d)\n", reason, so.State.Iteration)
	return nil
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	projectDir := fs.String("project-dir", "", "project directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectDir == "" {
		return fmt.Errorf("--project-dir is required")
	}

	if !tracker.HasMarker(*projectDir) {
		fmt.Println("fresh: no project marker found")
		return nil
	}

	trk, err := tracker.NewFileTracker(*projectDir)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}

	marker, _ := trk.Marker()
	var todo, inProgress, done, blocked int
	for _, item := range trk.List() {
		if item.IsMeta {
			continue
		}
		switch item.Status {
		case "todo":
			todo++
		case "in_progress":
			inProgress++
		case "done":
			done++
		case "blocked":
			blocked++
		}
	}

	fmt.Printf("project %s: %d total, %d todo, %d in_progress, %d done, %d blocked\n",
		marker.ProjectID, marker.TotalItems, todo, inProgress, done, blocked)
	return nil
}

// newProvider builds the coding agent's LLM provider. Per spec §6,
// llm_oauth_token is the credential the Agent Driver requires; when set
// it takes precedence over the bare ANTHROPIC_API_KEY so deployments that
// issue short-lived OAuth tokens to the agent never need an API key at
// all.
func newProvider(providerName, ollamaURL string) llm.Provider {
	if providerName == "ollama" {
		return llm.NewOllamaProvider(ollamaURL)
	}
	if oauthToken := os.Getenv("llm_oauth_token"); oauthToken != "" {
		return llm.NewAnthropicOAuthProvider(oauthToken)
	}
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.GetLogger().Warn().Msg("loom-agent: neither llm_oauth_token nor ANTHROPIC_API_KEY set; driver sessions will fail")
	}
	return llm.NewAnthropicProvider(apiKey)
}

// sessionSkills implements spec §4.4's session-kind-driven tool
// selection: a library-style project specification (DetectSessionKind)
// gets the retrieval skill if dataDir names an ingested corpus, and
// nothing else; anything else gets the browser automation skill, plus
// retrieval if dataDir is also set. specPath is re-read here (Session
// Orchestrator parses it again when it actually runs) only to pick the
// session kind before the driver is built; a parse failure just falls
// back to the web-coding skill set.
func sessionSkills(specPath, dataDir, screenshotDir string) ([]sdk.Skill, agent.SessionKind) {
	var engine *retrieval.Engine
	if dataDir != "" {
		store, err := vectorstore.Open(filepath.Join(dataDir, "vectors"), vectorstore.NewEmbeddingFunc(vectorstore.DefaultEmbeddingConfig()))
		if err != nil {
			logger.GetLogger().Warn().Err(err).Str("data_dir", dataDir).Msg("loom-agent: could not open vector store, retrieval skill disabled")
		} else {
			engine = retrieval.New(store, retrieval.DefaultAutoRouterConfig())
		}
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		return webSkills(engine, screenshotDir), agent.SessionKindWeb
	}
	parsed, err := specparse.Parse(data)
	if err != nil {
		return webSkills(engine, screenshotDir), agent.SessionKindWeb
	}

	if agent.DetectSessionKind(parsed, nil) == agent.SessionKindLibrary {
		if engine == nil {
			return nil, agent.SessionKindLibrary
		}
		return []sdk.Skill{skills.Retrieval(engine)}, agent.SessionKindLibrary
	}
	return webSkills(engine, screenshotDir), agent.SessionKindWeb
}

func webSkills(engine *retrieval.Engine, screenshotDir string) []sdk.Skill {
	out := []sdk.Skill{browser.New(screenshotDir)}
	if engine != nil {
		out = append(out, skills.Retrieval(engine))
	}
	return out
}

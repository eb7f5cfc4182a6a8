// Package main provides the entry point for loom-ingest.
//
// loom-ingest is a standalone command for Core B's document ingestion
// pipeline and retrieval engine:
// - ingest      Run the ten-stage pipeline over a source PDF
// - query       Run a retrieval query against the vector store
// - mcp         Start an MCP server (stdio) exposing retrieval tools
// - serve       Start the JSON status/progress/retrieval HTTP surface
//
// Usage:
//
//	loom-ingest ingest <pdf> --doc=<name>   Run the ingestion pipeline
//	loom-ingest query "<text>"              Query the vector store
//	loom-ingest mcp                         Start MCP server (stdio mode)
//	loom-ingest serve                       Start the HTTP service
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/loomwork/loom/internal/api"
	"github.com/loomwork/loom/internal/config"
	"github.com/loomwork/loom/internal/logger"
	ingestmcp "github.com/loomwork/loom/internal/mcp"
	"github.com/loomwork/loom/internal/project"
	"github.com/loomwork/loom/pkg/costledger"
	"github.com/loomwork/loom/pkg/ingest"
	"github.com/loomwork/loom/pkg/llm"
	"github.com/loomwork/loom/pkg/progress"
	"github.com/loomwork/loom/pkg/retrieval"
	"github.com/loomwork/loom/pkg/vectorstore"
)

var version = "dev"

func main() {
	api.SetVersion(version)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "ingest":
		err = cmdIngest(args)
	case "query":
		err = cmdQuery(args)
	case "mcp":
		err = cmdMCP(args)
	case "serve":
		err = cmdServe(args)
	case "version", "-v", "--version":
		fmt.Printf("loom-ingest version %s\n", version)
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
	fmt.Println(`loom-ingest - document ingestion pipeline and retrieval engine

Usage:
  loom-ingest ingest <pdf> [flags]   Run the ten-stage ingestion pipeline
  loom-ingest query "<text>" [flags] Query the vector store
  loom-ingest mcp                    Start MCP server (stdio mode)
  loom-ingest serve [flags]          Start the JSON status/progress/retrieval HTTP service
  loom-ingest version                Show version information
  loom-ingest help                   Show this help

Ingest flags:
  --doc NAME           Document name (default: pdf file's base name)
  --data-dir PATH       Ledger/store data directory (default: ./loom-data)
  --out PATH            Output directory for <doc>_chunks.json (default: ./loom-output)
  --skip-ocr             Reuse a previously cached OCR response
  --no-llm               Disable all LLM-backed stages (deterministic fallbacks only)
  --no-summaries         Skip the summarisation stage
  --no-vector-store      Skip stage 10 (vector store ingestion)
  --llm-provider local|remote   structure_llm_provider backend (default: remote)
  --ollama-url URL       Ollama base URL for the local provider

Serve flags:
  --data-dir PATH         Vector store data directory (default: ./loom-data)
  --config PATH           TOML config file overlay
  --addr HOST:PORT        Override the configured listen address
  --watch-dir PATH        Source-document directory to watch; invalidates the skip_ocr cache when a PDF changes on disk

Query flags:
  --mode simple|summary|hierarchical|auto   Retrieval mode (default: auto)
  --limit N              Maximum results (default: 10)
  --author NAME          Filter by work author
  --work TITLE           Filter by work title
  --language CODE        Filter by language
  --data-dir PATH         Vector store data directory (default: ./loom-data)

Environment:
  ANTHROPIC_API_KEY   API key for the remote LLM provider
  OCR_API_KEY          API key for the OCR service
  OCR_BASE_URL          Base URL for the OCR service`)
}

func dataDir(dir string) string {
	if dir == "" {
		return "./loom-data"
	}
	return dir
}

func openStore(dataDir string) (*vectorstore.Store, error) {
	embed := vectorstore.NewEmbeddingFunc(vectorstore.DefaultEmbeddingConfig())
	return vectorstore.Open(filepath.Join(dataDir, "vectors"), embed)
}

// openLLM builds the structure_llm_provider backend (spec §4.7/§6). The
// remote backend tries Gemini first when GOOGLE_GEMINI_API_KEY is set,
// falling back to Anthropic on failure (llm.MultiProvider) since neither
// extraction stage's CallStructured cares which remote model answered.
func openLLM(provider ingest.LLMProvider, ollamaURL string) ingest.StructuredCaller {
	if provider == ingest.ProviderLocal {
		return llm.NewRouter(llm.NewOllamaProvider(ollamaURL))
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		logger.GetLogger().Warn().Msg("loom-ingest: ANTHROPIC_API_KEY not set; LLM-backed stages will fail if enabled")
	}
	anthropic := llm.NewAnthropicProvider(apiKey)

	if gemini := llm.NewGenaiProvider(llm.DefaultGenaiConfig()); gemini != nil {
		return llm.NewRouter(llm.NewMultiProvider(gemini, anthropic))
	}
	return llm.NewRouter(anthropic)
}

func cmdIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	docName := fs.String("doc", "", "document name")
	dir := fs.String("data-dir", "", "ledger/store data directory")
	outDir := fs.String("out", "./loom-output", "output directory")
	skipOCR := fs.Bool("skip-ocr", false, "reuse cached OCR response")
	noLLM := fs.Bool("no-llm", false, "disable LLM-backed stages")
	noSummaries := fs.Bool("no-summaries", false, "skip summarisation")
	noVectorStore := fs.Bool("no-vector-store", false, "skip vector store ingestion")
	llmProvider := fs.String("llm-provider", "remote", "structure_llm_provider backend")
	ollamaURL := fs.String("ollama-url", "http://localhost:11434", "Ollama base URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: loom-ingest ingest <pdf> [flags]")
	}
	pdfPath := fs.Arg(0)
	if *docName == "" {
		base := filepath.Base(pdfPath)
		*docName = base[:len(base)-len(filepath.Ext(base))]
	}

	dd := dataDir(*dir)
	if err := os.MkdirAll(dd, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	ledger, err := costledger.Open(filepath.Join(dd, "costs"))
	if err != nil {
		return fmt.Errorf("open cost ledger: %w", err)
	}
	defer ledger.Close()

	cfg := ingest.DefaultConfig()
	cfg.SkipOCR = *skipOCR
	cfg.UseLLM = !*noLLM
	cfg.GenerateSummaries = !*noSummaries
	cfg.IngestToVectorStore = !*noVectorStore
	cfg.LLMProvider = ingest.LLMProvider(*llmProvider)

	var store *vectorstore.Store
	if cfg.IngestToVectorStore {
		store, err = openStore(dd)
		if err != nil {
			return fmt.Errorf("open vector store: %w", err)
		}
	}

	var caller ingest.StructuredCaller
	if cfg.UseLLM {
		caller = openLLM(cfg.LLMProvider, *ollamaURL)
	}

	ocrClient := ingest.NewHTTPOCRClient(os.Getenv("OCR_BASE_URL"), os.Getenv("OCR_API_KEY"))

	pipeline := &ingest.Pipeline{
		Config: cfg,
		OCR:    ocrClient,
		LLM:    caller,
		Ledger: ledger,
		Store:  store,
		OutDir: *outDir,
	}

	ch := progress.New(pipelineEventBuffer)
	go reportProgress(ch)

	result, err := pipeline.Run(context.Background(), *docName, pdfPath, ch)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	fmt.Printf("ingested %s: %d chunks, %d summaries, wrote %s\n",
		*docName, len(result.ChunksJSON.Chunks), len(result.ChunksJSON.Summaries), result.OutputPath)
	return nil
}

const pipelineEventBuffer = 16

func reportProgress(ch *progress.Channel) {
	for ev := range ch.Events() {
		switch ev.Kind {
		case progress.KindStep:
			fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", ev.Step, ev.Total, ev.Label)
		case progress.KindComplete:
			fmt.Fprintf(os.Stderr, "done: %s\n", ev.Message)
		case progress.KindError:
			fmt.Fprintf(os.Stderr, "failed: %v\n", ev.Err)
		}
	}
}

func cmdQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	mode := fs.String("mode", "auto", "retrieval mode")
	limit := fs.Int("limit", 10, "maximum results")
	author := fs.String("author", "", "filter by work author")
	work := fs.String("work", "", "filter by work title")
	language := fs.String("language", "", "filter by language")
	dir := fs.String("data-dir", "", "vector store data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf(`usage: loom-ingest query "<text>" [flags]`)
	}
	query := fs.Arg(0)

	store, err := openStore(dataDir(*dir))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	engine := retrieval.New(store, retrieval.DefaultAutoRouterConfig())
	filters := retrieval.Filters{Author: *author, Work: *work, Language: *language}

	var resp retrieval.Response
	switch *mode {
	case "simple":
		resp = engine.Simple(context.Background(), query, *limit, filters)
	case "summary":
		resp = engine.Summary(context.Background(), query, *limit, filters)
	case "hierarchical":
		resp = engine.Hierarchical(context.Background(), query, *limit, 3, 5, filters)
	default:
		resp = engine.Auto(context.Background(), query, *limit, filters)
	}

	if !resp.OK {
		return fmt.Errorf("%s: %s", resp.Kind, resp.Message)
	}
	for i, r := range resp.Results {
		fmt.Printf("%d. [%.3f] %s (%s)\n   %s\n", i+1, r.Score, r.SectionPath, r.WorkTitle, truncate(r.Text, 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func cmdMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	dir := fs.String("data-dir", "", "vector store data directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(dataDir(*dir))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	engine := retrieval.New(store, retrieval.DefaultAutoRouterConfig())
	server := ingestmcp.NewRetrievalServer(engine)
	return server.ServeStdio()
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dir := fs.String("data-dir", "", "vector store data directory")
	configPath := fs.String("config", "", "TOML config file overlay (default: built-in defaults + env)")
	addr := fs.String("addr", "", "override the configured host:port")
	watchDir := fs.String("watch-dir", "", "source-document directory to watch for changes (invalidates the skip_ocr cache)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Load(config.DefaultConfigPath())
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	store, err := openStore(dataDir(*dir))
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	if *watchDir != "" {
		ledger, err := costledger.Open(filepath.Join(dataDir(*dir), "costs"))
		if err != nil {
			return fmt.Errorf("open cost ledger: %w", err)
		}
		defer ledger.Close()

		watcher, err := project.NewWatcher(*watchDir, ledger)
		if err != nil {
			return fmt.Errorf("create project watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("start project watcher: %w", err)
		}
		defer watcher.Stop()
		logger.GetLogger().Info().Str("dir", *watchDir).Msg("loom-ingest: watching source documents for changes")
	}

	routerCfg := retrieval.DefaultAutoRouterConfig()
	if cfg.Retrieval.AutoRouterMinToken > 0 {
		routerCfg.MinTokens = cfg.Retrieval.AutoRouterMinToken
	}
	engine := retrieval.New(store, routerCfg)
	server := api.NewServer(cfg, store, engine)

	listenAddr := cfg.Address()
	if *addr != "" {
		listenAddr = *addr
	}
	logger.GetLogger().Info().Str("addr", listenAddr).Msg("loom-ingest: starting HTTP service")
	return http.ListenAndServe(listenAddr, server.Handler())
}

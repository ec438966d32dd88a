package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/izukaai/izuka/agent"
	"github.com/izukaai/izuka/checkpoint"
	"github.com/izukaai/izuka/checkpoint/store"
	"github.com/izukaai/izuka/config"
	"github.com/izukaai/izuka/contrib/provider"
	"github.com/izukaai/izuka/contrib/tokenizer/tiktoken"
	"github.com/izukaai/izuka/contrib/tools/web"
	"github.com/izukaai/izuka/graph"
	mcpclient "github.com/izukaai/izuka/mcp"
	"github.com/izukaai/izuka/message"
	"github.com/izukaai/izuka/middleware"
	"github.com/izukaai/izuka/pkg/logging"
	"github.com/izukaai/izuka/pkg/telemetry"
	toolmcp "github.com/izukaai/izuka/tool/mcp"
)

const defaultQuestion = "What is the name of the current mayor of San Francisco, and in which year did their term begin?"

// Tool results are previewed with at most this many characters.
const toolResultPreview = 200

type agentOptions struct {
	thread        string
	backend       string
	model         string
	temperature   float64
	maxTokens     int
	maxIterations int
	rateLimit     int
	tokenBudget   int
	interrupt     bool
	mcpEndpoint   string
	mcpCommand    string
}

func (o *agentOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.thread, "thread", "1", "thread ID the checkpoints are keyed by")
	f.StringVar(&o.backend, "provider", provider.BackendOpenAI, "LLM backend: openai, claude or gemini")
	f.StringVar(&o.model, "model", "", "model name (defaults per provider)")
	f.Float64Var(&o.temperature, "temperature", 0, "sampling temperature")
	f.IntVar(&o.maxTokens, "max-tokens", 2000, "completion token limit")
	f.IntVar(&o.maxIterations, "max-iterations", 10, "maximum agent loop iterations")
	f.IntVar(&o.rateLimit, "rate-limit", 60, "LLM requests allowed per minute")
	f.IntVar(&o.tokenBudget, "token-budget", 8000, "conversation window budget in tokens (0 disables trimming)")
	f.BoolVar(&o.interrupt, "interrupt-tools", false, "pause and checkpoint before every tool step")
	f.StringVar(&o.mcpEndpoint, "mcp-server", "", "streamable HTTP endpoint of an MCP server to pull tools from")
	f.StringVar(&o.mcpCommand, "mcp-command", "", "command to launch a stdio MCP server to pull tools from")
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run and inspect the tool-calling agent",
	}
	cmd.AddCommand(agentRunCmd())
	cmd.AddCommand(agentResumeCmd())
	cmd.AddCommand(agentThreadsCmd())
	return cmd
}

func agentRunCmd() *cobra.Command {
	var opts agentOptions
	cmd := &cobra.Command{
		Use:   "run [question]",
		Short: "Ask the agent a question, checkpointing every step",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := defaultQuestion
			if len(args) > 0 {
				question = args[0]
			}
			return runAgentSession(cmd.Context(), &opts, func(ctx context.Context, ag *agent.Agent) (string, error) {
				return ag.RunThread(ctx, opts.thread, question)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

func agentResumeCmd() *cobra.Command {
	var opts agentOptions
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue an interrupted thread from its last checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentSession(cmd.Context(), &opts, func(ctx context.Context, ag *agent.Agent) (string, error) {
				return ag.Resume(ctx, opts.thread)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// runAgentSession validates configuration, assembles the agent and executes
// one run or resume invocation against it.
func runAgentSession(ctx context.Context, opts *agentOptions, invoke func(context.Context, *agent.Agent) (string, error)) error {
	cfg := config.Load()
	if err := cfg.ValidateAgent(); err != nil {
		return err
	}
	if err := config.ValidateProviderBackend(opts.backend,
		provider.BackendOpenAI, provider.BackendClaude, provider.BackendGemini); err != nil {
		return err
	}
	if opts.model == "" {
		opts.model = provider.DefaultModel(opts.backend)
	}
	if err := config.ValidateLLMConfig(opts.model, opts.temperature, opts.maxTokens); err != nil {
		return err
	}
	if err := config.ValidateRateLimiterConfig(opts.rateLimit); err != nil {
		return err
	}

	logger := logging.WithComponent("cli")

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{ServiceName: "izuka-agent"})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("shutdown telemetry", "error", err)
		}
	}()

	ag, cleanup, err := buildAgent(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	answer, err := invoke(ctx, ag)
	if errors.Is(err, graph.ErrInterrupted) {
		printTranscript(ag.GetMessages())
		fmt.Printf("\nThread %s paused before tool execution. Continue with:\n  izuka agent resume --thread %s\n", opts.thread, opts.thread)
		return nil
	}
	if err != nil {
		return err
	}

	printTranscript(ag.GetMessages())
	fmt.Printf("\nFinal answer: %s\n", answer)
	return nil
}

// buildAgent wires the LLM provider, checkpoint store, tools and middleware
// chain into a ready-to-run agent. The returned cleanup closes the agent and
// the store.
func buildAgent(ctx context.Context, cfg *config.Settings, opts *agentOptions, logger *slog.Logger) (*agent.Agent, func(), error) {
	st, closeStore, backend, err := openCheckpointStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("checkpoint store ready", "backend", backend)
	if opts.interrupt && backend == config.BackendInMemory {
		logger.Warn("inmemory checkpoints do not survive the process; resume only works with a durable backend")
	}

	llm, err := provider.New(ctx, opts.backend, provider.Options{
		Endpoint:    cfg.LLMEndpoint,
		Token:       cfg.LLMToken,
		Model:       opts.model,
		MaxTokens:   int64(opts.maxTokens),
		Temperature: opts.temperature,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	agentOpts := []agent.Option{
		agent.WithName("izuka"),
		agent.WithProvider(llm),
		agent.WithTemperature(opts.temperature),
		agent.WithMaxIterations(opts.maxIterations),
		agent.WithCheckpointer(checkpoint.NewStoreSaver(st)),
		agent.WithMiddlewares(
			middleware.NewRequestLogger(logging.WithComponent("agent")),
			middleware.NewResponseLogger(logging.WithComponent("agent")),
			middleware.NonEmptyInput(),
			middleware.NewRateLimiter(opts.rateLimit, time.Minute),
		),
	}
	if opts.interrupt {
		agentOpts = append(agentOpts, agent.WithInterruptBeforeTools())
	}
	if opts.tokenBudget > 0 {
		counter, err := tiktoken.NewTiktokenTokenizer(opts.model)
		if err != nil {
			logger.Warn("tokenizer unavailable, window trimming disabled", "model", opts.model, "error", err)
		} else {
			agentOpts = append(agentOpts, agent.WithTokenBudget(counter, opts.tokenBudget))
		}
	}
	if opts.mcpEndpoint != "" || opts.mcpCommand != "" {
		mp, err := toolmcp.NewProvider(ctx, toolmcp.Config{
			Endpoint: opts.mcpEndpoint,
			Command:  opts.mcpCommand,
		}, mcpclient.WithLogger(logging.WithComponent("mcp")))
		if err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("connect mcp server: %w", err)
		}
		agentOpts = append(agentOpts, agent.WithToolProvider(mp))
	}

	ag := agent.New(agentOpts...)

	if err := ag.RegisterTool(web.NewSearchTool(&web.SearchConfig{APIKey: cfg.SearchAPIKey})); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("register web_search: %w", err)
	}
	if err := ag.RegisterTool(web.NewFetchPageTool(nil)); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("register fetch_page: %w", err)
	}

	cleanup := func() {
		if err := ag.Close(); err != nil {
			logger.Warn("close agent", "error", err)
		}
		if err := closeStore(); err != nil {
			logger.Warn("close checkpoint store", "error", err)
		}
	}
	return ag, cleanup, nil
}

// openCheckpointStore picks the checkpoint backend from configuration and
// opens it, validating backend settings before connecting.
func openCheckpointStore(cfg *config.Settings) (checkpoint.Store, func() error, string, error) {
	backend := cfg.CheckpointBackend()
	switch backend {
	case config.BackendPostgres:
		st, err := store.NewPostgresStore(store.PostgresConfigFromEnv())
		if err != nil {
			return nil, nil, backend, fmt.Errorf("open postgres checkpoint store: %w", err)
		}
		return st, st.Close, backend, nil
	case config.BackendMongo:
		mc := store.MongoConfigFromEnv()
		if err := config.ValidateMongoConfig(mc.URI, mc.Database, mc.Collection); err != nil {
			return nil, nil, backend, err
		}
		st, err := store.NewMongoStore(mc)
		if err != nil {
			return nil, nil, backend, fmt.Errorf("open mongo checkpoint store: %w", err)
		}
		return st, func() error { return st.Close(context.Background()) }, backend, nil
	case config.BackendRedis:
		rc := store.RedisConfigFromEnv()
		if err := config.ValidateRedisConfig(rc.Addr, rc.DB, rc.Prefix); err != nil {
			return nil, nil, backend, err
		}
		st := store.NewRedisStore(rc)
		return st, st.Close, backend, nil
	default:
		return store.NewInMemoryStore(), func() error { return nil }, backend, nil
	}
}

func agentThreadsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List stored threads and their checkpoint state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentThreads(cmd.Context(), jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

type threadEntry struct {
	ThreadID    string `json:"threadId"`
	Messages    int    `json:"messages"`
	PendingNode string `json:"pendingNode,omitempty"`
	UpdatedAt   string `json:"updatedAt"`
}

func runAgentThreads(ctx context.Context, jsonOutput bool) error {
	cfg := config.Load()
	st, closeStore, _, err := openCheckpointStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := st.List(ctx)
	if err != nil {
		return fmt.Errorf("list threads: %w", err)
	}

	entries := make([]threadEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, threadEntry{
			ThreadID:    rec.ThreadID,
			Messages:    len(rec.Messages),
			PendingNode: rec.PendingNode,
			UpdatedAt:   rec.UpdatedAt.Format(time.RFC3339),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ThreadID < entries[j].ThreadID })

	if jsonOutput {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No stored threads.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "THREAD\tMESSAGES\tPENDING\tUPDATED")
	for _, e := range entries {
		pending := e.PendingNode
		if pending == "" {
			pending = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.ThreadID, e.Messages, pending, e.UpdatedAt)
	}
	return w.Flush()
}

// printTranscript renders the conversation so far, previewing tool output
// and expanding requested tool calls.
func printTranscript(msgs []*message.Message) {
	for _, m := range msgs {
		if m == nil {
			continue
		}
		switch {
		case len(m.ToolCalls) > 0:
			fmt.Printf("%s: requesting %d tool call(s)\n", m.Role, len(m.ToolCalls))
			for _, call := range m.ToolCalls {
				args, _ := json.Marshal(call.Args)
				fmt.Printf("  - %s %s\n", call.Name, args)
			}
		case m.Role == message.RoleTool:
			fmt.Printf("%s: %s\n", m.Role, truncate(m.Content, toolResultPreview))
		default:
			fmt.Printf("%s: %s\n", m.Role, m.Content)
		}
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

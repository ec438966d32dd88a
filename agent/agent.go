package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/izukaai/izuka/checkpoint"
	agentContext "github.com/izukaai/izuka/context"
	"github.com/izukaai/izuka/graph"
	"github.com/izukaai/izuka/message"
	"github.com/izukaai/izuka/middleware"
	"github.com/izukaai/izuka/pkg/logging"
	"github.com/izukaai/izuka/prompt"
	"github.com/izukaai/izuka/tool"
)

// Node names of the agent execution graph.
const (
	nodeAgent = "agent"
	nodeRoute = "route"
	nodeTools = "tools"
)

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// Generate generates a response from the LLM
	Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error)

	// SetTemperature updates the temperature setting for generation
	SetTemperature(temp float64)

	// SetMaxTokens updates the maximum tokens limit for generation
	SetMaxTokens(max int64)

	// SetModel updates the model to use for generation
	SetModel(model string)
}

// Agent runs a tool-calling loop as a graph walk: an LLM step, a routing
// condition, and a tool step that feeds results back into the LLM step.
type Agent struct {
	name           string
	systemPrompt   string
	maxIterations  int
	temperature    float64
	temperatureSet bool
	enableTools    bool
	interruptTools bool
	llm            LLMClient
	tools          *tool.Registry
	batch          *tool.Batch
	flow           *graph.Graph
	checkpoints    graph.Checkpointer
	promptManager  *prompt.Manager
	ctx            *agentContext.Context
	middlewares    *middleware.MiddlewareChain
	logger         *slog.Logger
	providerMu     sync.Mutex
	toolProviders  []tool.Provider
	providerLoaded map[tool.Provider]bool
	providerWatch  map[tool.Provider]context.CancelFunc
}

// Option is a function that configures an Agent
type Option func(*Agent)

// WithName sets the agent name
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithSystemPrompt sets the system prompt
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithMaxIterations sets the maximum iterations for tool calling
func WithMaxIterations(max int) Option {
	return func(a *Agent) {
		a.maxIterations = max
	}
}

// WithTemperature sets the temperature for LLM generation, overriding the
// provider's configured value.
func WithTemperature(temp float64) Option {
	return func(a *Agent) {
		a.temperature = temp
		a.temperatureSet = true
	}
}

// WithTools enables or disables tool usage
func WithTools(enable bool) Option {
	return func(a *Agent) {
		a.enableTools = enable
	}
}

// WithTokenBudget trims the conversation window to the given token budget,
// measured by the counter.
func WithTokenBudget(counter agentContext.TokenCounter, budget int) Option {
	return func(a *Agent) {
		a.ctx.SetTokenBudget(counter, budget)
	}
}

// WithProvider sets the LLM provider
func WithProvider(provider LLMClient) Option {
	return func(a *Agent) {
		a.llm = provider
	}
}

// WithToolProvider registers a tool provider that will supply tools on demand.
func WithToolProvider(provider tool.Provider) Option {
	return func(a *Agent) {
		if provider == nil {
			return
		}
		a.providerMu.Lock()
		defer a.providerMu.Unlock()
		a.toolProviders = append(a.toolProviders, provider)
	}
}

// WithCheckpointer persists execution state after every graph step, keyed by
// the thread ID passed to RunThread or Resume.
func WithCheckpointer(cp graph.Checkpointer) Option {
	return func(a *Agent) {
		a.checkpoints = cp
	}
}

// WithInterruptBeforeTools pauses execution before the tool step. The paused
// thread is continued with Resume.
func WithInterruptBeforeTools() Option {
	return func(a *Agent) {
		a.interruptTools = true
	}
}

// WithMiddleware adds a middleware to the agent
func WithMiddleware(m middleware.Middleware) Option {
	return func(a *Agent) {
		a.middlewares.Add(m)
	}
}

// WithMiddlewares sets the middleware chain
func WithMiddlewares(middlewares ...middleware.Middleware) Option {
	return func(a *Agent) {
		a.middlewares = middleware.NewChain(middlewares...)
	}
}

// New creates a new agent with the given options
func New(opts ...Option) *Agent {
	// Default values
	agent := &Agent{
		name:           "Agent",
		systemPrompt:   "You are a helpful AI assistant.",
		maxIterations:  10,
		temperature:    0.7,
		enableTools:    true,
		tools:          tool.NewRegistry(),
		promptManager:  prompt.NewManager(),
		ctx:            agentContext.New(),
		middlewares:    middleware.NewChain(),
		logger:         logging.WithComponent("agent"),
		providerLoaded: make(map[tool.Provider]bool),
		providerWatch:  make(map[tool.Provider]context.CancelFunc),
	}

	// Apply options
	for _, opt := range opts {
		opt(agent)
	}

	if agent.llm != nil && agent.temperatureSet {
		agent.llm.SetTemperature(agent.temperature)
	}

	agent.batch = tool.NewBatch(agent.tools, 0)
	agent.flow = agent.buildFlow()

	// Add system prompt as first message if set
	if agent.systemPrompt != "" {
		agent.ctx.AddMessage(message.NewMessage(message.RoleSystem, agent.systemPrompt))
	}

	return agent
}

// buildFlow assembles the execution graph: the LLM step feeds a routing
// condition that either terminates or hands the pending calls to the tool
// step, which loops back into the LLM step.
func (a *Agent) buildFlow() *graph.Graph {
	b := graph.NewBuilder().
		AddNode(nodeAgent, graph.NodeTypeLLM, a.agentStep).
		AddConditionNode(nodeRoute, a.routeAfterAgent, map[string]string{
			nodeTools: nodeTools,
			graph.End: graph.End,
		}).
		AddNode(nodeTools, graph.NodeTypeTool, a.toolStep).
		AddEdge(nodeAgent, nodeRoute).
		AddEdge(nodeTools, nodeAgent).
		SetStart(nodeAgent).
		SetMaxVisits(a.maxIterations + 1)

	if a.checkpoints != nil {
		b.WithCheckpointer(a.checkpoints)
	}
	if a.interruptTools {
		b.InterruptBefore(nodeTools)
	}
	return b.Build()
}

// agentStep calls the LLM with the transcript and the registered tool schemas
// and appends the assistant reply.
func (a *Agent) agentStep(ctx context.Context, state graph.State) (graph.State, error) {
	msgs := checkpoint.MessagesFromState(state)
	if turns := assistantTurns(msgs); turns >= a.maxIterations {
		return nil, fmt.Errorf("max iterations (%d) reached", a.maxIterations)
	}

	var toolSchemas []map[string]any
	if a.enableTools {
		toolSchemas = a.tools.ToJSONSchemas()
	}

	response, err := a.llm.Generate(ctx, msgs, toolSchemas)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}

	next := state.Clone()
	next[checkpoint.MessagesKey] = append(message.CloneMessages(msgs), response)
	return next, nil
}

// routeAfterAgent terminates the walk unless the assistant reply requested
// tool calls.
func (a *Agent) routeAfterAgent(ctx context.Context, state graph.State) (string, error) {
	msgs := checkpoint.MessagesFromState(state)
	if len(msgs) == 0 {
		return graph.End, nil
	}
	last := msgs[len(msgs)-1]
	if last.Role == message.RoleAssistant && len(last.ToolCalls) > 0 {
		return nodeTools, nil
	}
	return graph.End, nil
}

// toolStep executes every call requested by the latest assistant reply and
// appends one tool response per call, in the order the calls were issued.
// A failing call yields an error response correlated to its call ID; the
// other calls in the batch are unaffected.
func (a *Agent) toolStep(ctx context.Context, state graph.State) (graph.State, error) {
	msgs := checkpoint.MessagesFromState(state)
	if len(msgs) == 0 {
		return state, nil
	}
	last := msgs[len(msgs)-1]
	if last.Role != message.RoleAssistant || len(last.ToolCalls) == 0 {
		return state, nil
	}

	calls := make([]tool.Invocation, 0, len(last.ToolCalls))
	for _, toolCall := range last.ToolCalls {
		calls = append(calls, tool.Invocation{
			ID:   toolCall.ID,
			Name: toolCall.Name,
			Args: toolCall.Args,
		})
	}

	outcomes := a.batch.Run(ctx, calls)

	updated := message.CloneMessages(msgs)
	for _, outcome := range outcomes {
		result := outcome.Output
		if outcome.Err != nil {
			result = fmt.Sprintf("Error executing tool %s: %v", outcome.Name, outcome.Err)
		}
		updated = append(updated, message.NewToolResponseMessage(outcome.ID, result))
	}

	next := state.Clone()
	next[checkpoint.MessagesKey] = updated
	return next, nil
}

// assistantTurns counts the assistant replies since the last user message.
func assistantTurns(msgs []*message.Message) int {
	turns := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		switch msgs[i].Role {
		case message.RoleUser:
			return turns
		case message.RoleAssistant:
			turns++
		}
	}
	return turns
}

func lastAssistantMessage(msgs []*message.Message) *message.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleAssistant {
			return msgs[i]
		}
	}
	return nil
}

func (a *Agent) loadToolProviders(ctx context.Context) error {
	if !a.enableTools {
		return nil
	}

	for _, provider := range a.getToolProviders() {
		if provider == nil {
			continue
		}

		if a.isProviderLoaded(provider) {
			continue
		}

		if err := a.updateProviderTools(ctx, provider); err != nil {
			return err
		}

		a.markProviderLoaded(provider)
		a.startProviderWatcher(provider)
	}

	return nil
}

func (a *Agent) getToolProviders() []tool.Provider {
	a.providerMu.Lock()
	defer a.providerMu.Unlock()
	return append([]tool.Provider(nil), a.toolProviders...)
}

func (a *Agent) isProviderLoaded(provider tool.Provider) bool {
	a.providerMu.Lock()
	defer a.providerMu.Unlock()
	return a.providerLoaded[provider]
}

func (a *Agent) markProviderLoaded(provider tool.Provider) {
	a.providerMu.Lock()
	defer a.providerMu.Unlock()
	if a.providerLoaded == nil {
		a.providerLoaded = make(map[tool.Provider]bool)
	}
	a.providerLoaded[provider] = true
}

func (a *Agent) updateProviderTools(ctx context.Context, provider tool.Provider) error {
	tools, err := provider.Tools(ctx)
	if err != nil {
		return fmt.Errorf("load tools from provider: %w", err)
	}

	for _, t := range tools {
		if t == nil || t.Name == "" {
			continue
		}
		if err := a.tools.Upsert(t); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) startProviderWatcher(provider tool.Provider) {
	ch := provider.ToolsChanged()
	if ch == nil {
		return
	}

	a.providerMu.Lock()
	if a.providerWatch == nil {
		a.providerWatch = make(map[tool.Provider]context.CancelFunc)
	}
	if _, exists := a.providerWatch[provider]; exists {
		a.providerMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.providerWatch[provider] = cancel
	a.providerMu.Unlock()

	go a.watchProvider(ctx, provider, ch)
}

func (a *Agent) watchProvider(ctx context.Context, provider tool.Provider, ch <-chan struct{}) {
	defer a.removeProviderWatcher(provider)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := a.updateProviderTools(ctx, provider); err != nil {
				a.logger.Warn("failed to refresh provider tools", "error", err)
			}
		}
	}
}

func (a *Agent) removeProviderWatcher(provider tool.Provider) {
	a.providerMu.Lock()
	defer a.providerMu.Unlock()
	if cancel, ok := a.providerWatch[provider]; ok {
		cancel()
		delete(a.providerWatch, provider)
	}
}

// SetCheckpointer installs the checkpointer used for thread persistence.
func (a *Agent) SetCheckpointer(cp graph.Checkpointer) {
	a.checkpoints = cp
	a.flow.SetCheckpointer(cp)
}

// RegisterTool registers a tool with the agent
func (a *Agent) RegisterTool(t *tool.Tool) error {
	return a.tools.Register(t)
}

// RegisterPrompt registers a prompt template
func (a *Agent) RegisterPrompt(name, content string) error {
	return a.promptManager.RegisterString(name, content)
}

// AddMiddleware adds a middleware to the agent with validation
func (a *Agent) AddMiddleware(m middleware.Middleware) error {
	if m == nil {
		return fmt.Errorf("middleware cannot be nil")
	}
	a.middlewares.Add(m)
	return nil
}

// GetMiddlewareChain returns the middleware chain
func (a *Agent) GetMiddlewareChain() *middleware.MiddlewareChain {
	return a.middlewares
}

// AddMessage adds a message to the conversation
func (a *Agent) AddMessage(msg *message.Message) {
	a.ctx.AddMessage(msg)
}

// GetMessages returns all messages
func (a *Agent) GetMessages() []*message.Message {
	return a.ctx.GetMessages()
}

// ClearMessages clears all messages except system messages
func (a *Agent) ClearMessages() {
	a.ctx.Clear()
	// Re-add system prompt
	if a.systemPrompt != "" {
		a.ctx.AddMessage(message.NewMessage(message.RoleSystem, a.systemPrompt))
	}
}

// RestoreMessages replaces the conversation with the given transcript, e.g.
// when rehydrating a thread. An empty transcript falls back to the system
// prompt alone.
func (a *Agent) RestoreMessages(msgs []*message.Message) {
	if len(msgs) == 0 {
		a.ClearMessages()
		return
	}
	a.ctx.SetMessages(message.CloneMessages(msgs))
}

// Run executes the agent with the given input
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	return a.RunThread(ctx, "", input)
}

// RunThread executes the agent with the given input, persisting a checkpoint
// after every step under the given thread ID. When execution pauses before
// the tool step the returned error matches graph.ErrInterrupted and the
// thread is continued with Resume.
func (a *Agent) RunThread(ctx context.Context, threadID, input string) (string, error) {
	if err := a.loadToolProviders(ctx); err != nil {
		return "", err
	}

	// Create middleware context
	mwCtx := middleware.NewContext(ctx)
	mwCtx.Input = input

	// Execute with middleware chain
	err := a.middlewares.Execute(mwCtx, func(mwCtx *middleware.Context) error {
		// Add user message
		userMsg := message.NewMessage(message.RoleUser, input)
		a.ctx.AddMessage(userMsg)
		mwCtx.Messages = a.ctx.GetMessages()

		state := graph.State{
			checkpoint.MessagesKey: a.ctx.GetMessages(),
		}

		final, err := a.flow.Execute(mwCtx.Context(), state, graph.WithThread(threadID))
		if err != nil {
			if errors.Is(err, graph.ErrInterrupted) {
				// Keep the partial transcript; the thread continues via Resume.
				a.ctx.SetMessages(checkpoint.MessagesFromState(final))
			}
			return err
		}

		msgs := checkpoint.MessagesFromState(final)
		a.ctx.SetMessages(msgs)
		mwCtx.Messages = msgs
		if last := lastAssistantMessage(msgs); last != nil {
			mwCtx.Response = last
		}
		return nil
	})

	if err != nil {
		return "", err
	}

	if mwCtx.Response != nil {
		return mwCtx.Response.Content, nil
	}

	return "", fmt.Errorf("no response generated")
}

// Resume continues an interrupted thread from its last checkpoint.
func (a *Agent) Resume(ctx context.Context, threadID string) (string, error) {
	if err := a.loadToolProviders(ctx); err != nil {
		return "", err
	}

	final, err := a.flow.Resume(ctx, threadID)
	if err != nil {
		return "", err
	}

	msgs := checkpoint.MessagesFromState(final)
	a.ctx.SetMessages(msgs)

	last := lastAssistantMessage(msgs)
	if last == nil {
		return "", fmt.Errorf("no response generated")
	}
	return last.Content, nil
}

// Stream executes the agent and delivers the final response through the
// callback once complete.
func (a *Agent) Stream(ctx context.Context, input string, callback func(string) error) error {
	result, err := a.Run(ctx, input)
	if err != nil {
		return err
	}
	return callback(result)
}

// Close stops provider watchers and releases every registered tool provider.
func (a *Agent) Close() error {
	a.providerMu.Lock()
	for provider, cancel := range a.providerWatch {
		cancel()
		delete(a.providerWatch, provider)
	}
	providers := append([]tool.Provider(nil), a.toolProviders...)
	a.providerMu.Unlock()

	var errs []error
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		if err := provider.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clone creates a copy of the agent with the same configuration
func (a *Agent) Clone() *Agent {
	opts := []Option{
		WithName(a.name),
		WithSystemPrompt(a.systemPrompt),
		WithMaxIterations(a.maxIterations),
		WithProvider(a.llm),
		WithTools(a.enableTools),
	}
	if a.temperatureSet {
		opts = append(opts, WithTemperature(a.temperature))
	}
	if a.checkpoints != nil {
		opts = append(opts, WithCheckpointer(a.checkpoints))
	}
	if a.interruptTools {
		opts = append(opts, WithInterruptBeforeTools())
	}

	cloned := New(opts...)

	// Clone all registered tools
	for _, tool := range a.tools.List() {
		if tool != nil {
			_ = cloned.tools.Register(tool)
		}
	}

	// Share the prompt manager
	if a.promptManager != nil {
		cloned.promptManager = a.promptManager
	}

	// Clone middleware chain
	if a.middlewares != nil {
		cloned.middlewares = middleware.NewChain(a.middlewares.List()...)
	}

	if providers := a.getToolProviders(); len(providers) > 0 {
		cloned.toolProviders = append(cloned.toolProviders, providers...)
	}

	return cloned
}

package graph

import (
	"context"
	"fmt"

	"github.com/izukaai/izuka/pkg/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// End is the reserved route that terminates execution. Edges and condition
// results may point at it; no node can be registered under this name.
const End = "__end__"

const tracerName = "github.com/izukaai/izuka/graph"

// NodeType represents the type of a node in the graph
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeLLM       NodeType = "llm"
	NodeTypeTool      NodeType = "tool"
	NodeTypeCondition NodeType = "condition"
	NodeTypeCustom    NodeType = "custom"
)

// State represents the execution state passed between nodes
type State map[string]any

// Clone returns a shallow copy of the state map.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	copied := make(State, len(s))
	for k, v := range s {
		copied[k] = v
	}
	return copied
}

// NodeFunc is the function executed by a node
type NodeFunc func(context.Context, State) (State, error)

// ConditionFunc evaluates a condition and returns the next node name
type ConditionFunc func(context.Context, State) (string, error)

// Node represents a node in the execution graph
type Node struct {
	Name      string
	Type      NodeType
	Execute   NodeFunc
	Condition ConditionFunc     // Only for condition nodes
	NextNodes []string          // Outgoing edges (order defines default)
	NextMap   map[string]string // For condition nodes: condition result -> next node
}

// Graph represents an execution flow graph
type Graph struct {
	nodes           map[string]*Node
	startNode       string
	maxVisits       int
	checkpointer    Checkpointer
	interruptBefore map[string]bool
}

// NewGraph creates a new graph
func NewGraph() *Graph {
	return &Graph{
		nodes:           make(map[string]*Node),
		maxVisits:       10,
		interruptBefore: make(map[string]bool),
	}
}

func (g *Graph) validateNode(node *Node) {
	if node.Name == "" {
		panic("node name cannot be empty")
	}
	if node.Name == End {
		panic(fmt.Sprintf("node name %s is reserved", End))
	}

	switch node.Type {
	case NodeTypeCondition:
		if node.Condition == nil {
			panic(fmt.Sprintf("condition node %s must have non-nil Condition function", node.Name))
		}
	default:
		if node.Execute == nil {
			panic(fmt.Sprintf("node %s of type %s must have non-nil Execute function", node.Name, node.Type))
		}
	}
}

// AddNode adds a node to the graph
func (g *Graph) AddNode(node *Node) {
	if _, exists := g.nodes[node.Name]; exists {
		panic(fmt.Sprintf("node %s already exists", node.Name))
	}

	g.validateNode(node)

	g.nodes[node.Name] = node

	// Auto-set start node
	if node.Type == NodeTypeStart {
		g.startNode = node.Name
	}
}

func (n *Node) addNext(name string) {
	n.NextNodes = append(n.NextNodes, name)
}

func (n *Node) firstNext() string {
	if n == nil {
		return ""
	}
	if len(n.NextNodes) == 0 {
		return ""
	}
	return n.NextNodes[0]
}

// SetStartNode sets the start node
func (g *Graph) SetStartNode(name string) {
	if _, exists := g.nodes[name]; !exists {
		panic(fmt.Sprintf("node %s not found", name))
	}
	g.startNode = name
}

// SetCheckpointer installs the persistence hook invoked after every step.
func (g *Graph) SetCheckpointer(cp Checkpointer) {
	g.checkpointer = cp
}

// SetInterruptBefore pauses execution ahead of the named nodes. A paused
// thread is continued with Resume.
func (g *Graph) SetInterruptBefore(names ...string) {
	for _, name := range names {
		g.interruptBefore[name] = true
	}
}

// SetMaxVisits sets the maximum number of visits to a node
func (g *Graph) SetMaxVisits(maxVisits int) {
	g.maxVisits = maxVisits
}

type executeOptions struct {
	threadID string
}

// ExecuteOption customises a single Execute call.
type ExecuteOption func(*executeOptions)

// WithThread keys checkpoints under the given thread ID.
func WithThread(threadID string) ExecuteOption {
	return func(o *executeOptions) { o.threadID = threadID }
}

// Execute runs the graph starting from the configured start node.
// The walk is sequential: run the current node, persist a checkpoint, follow
// the resolved edge, and stop once the walk reaches End. When the upcoming
// node is marked interrupt-before, the walk saves a checkpoint with that node
// pending and returns an InterruptError instead of running it.
func (g *Graph) Execute(ctx context.Context, initialState State, opts ...ExecuteOption) (State, error) {
	if g.startNode == "" {
		return nil, fmt.Errorf("start node not set")
	}

	options := executeOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	state := initialState
	if state == nil {
		state = make(State)
	}

	return g.run(ctx, state, g.startNode, options.threadID, false)
}

// Resume continues an interrupted thread from its checkpoint. The node the
// thread was paused before executes without re-triggering the interrupt.
func (g *Graph) Resume(ctx context.Context, threadID string) (State, error) {
	if g.checkpointer == nil {
		return nil, fmt.Errorf("resume requires a checkpointer")
	}
	if threadID == "" {
		return nil, fmt.Errorf("resume requires a thread ID")
	}

	cp, err := g.checkpointer.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for thread %s: %w", threadID, err)
	}
	if cp.Next == "" || cp.Next == End {
		return cp.State, nil
	}
	return g.run(ctx, cp.State, cp.Next, threadID, true)
}

func (g *Graph) run(ctx context.Context, state State, startAt, threadID string, resumed bool) (State, error) {
	tracer := otel.Tracer(tracerName)
	current := startAt
	visited := make(map[string]int)
	skipInterrupt := resumed

	for current != End {
		node, exists := g.nodes[current]
		if !exists {
			return nil, fmt.Errorf("node %s not found", current)
		}

		// Detect runaway loops by counting how many times we revisit a node.
		visited[current]++
		if visited[current] > g.maxVisits {
			return nil, fmt.Errorf("infinite loop detected at node %s", current)
		}

		if !skipInterrupt && g.interruptBefore[current] {
			if err := g.saveCheckpoint(ctx, threadID, state, current); err != nil {
				return nil, err
			}
			return state, &InterruptError{Node: current}
		}
		skipInterrupt = false

		next, nextState, err := g.step(ctx, tracer, node, state)
		if err != nil {
			return nil, err
		}
		state = nextState

		if err := g.saveCheckpoint(ctx, threadID, state, next); err != nil {
			return nil, err
		}
		current = next
	}

	return state, nil
}

func (g *Graph) step(ctx context.Context, tracer trace.Tracer, node *Node, state State) (string, State, error) {
	ctx, span := tracer.Start(ctx, "graph.step",
		trace.WithAttributes(
			attribute.String("node.name", node.Name),
			attribute.String("node.type", string(node.Type)),
		))

	switch node.Type {
	case NodeTypeCondition:
		result, err := node.Condition(ctx, state)
		if err != nil {
			err = fmt.Errorf("error evaluating condition at node %s: %w", node.Name, err)
			telemetry.End(span, err)
			return "", nil, err
		}
		next, err := g.resolveRoute(node, result)
		telemetry.End(span, err)
		if err != nil {
			return "", nil, err
		}
		return next, state, nil
	default:
		newState, err := node.Execute(ctx, state)
		if err != nil {
			err = fmt.Errorf("error executing node %s: %w", node.Name, err)
			telemetry.End(span, err)
			return "", nil, err
		}
		next := node.firstNext()
		if next == "" {
			err = fmt.Errorf("no next node specified for node %s", node.Name)
			telemetry.End(span, err)
			return "", nil, err
		}
		telemetry.End(span, nil)
		return next, newState, nil
	}
}

// resolveRoute maps a condition result onto the next node: an explicit
// NextMap entry wins, otherwise the result itself may name a node or End.
func (g *Graph) resolveRoute(node *Node, result string) (string, error) {
	if next, ok := node.NextMap[result]; ok && next != "" {
		return next, nil
	}
	if result == End {
		return End, nil
	}
	if _, ok := g.nodes[result]; ok {
		return result, nil
	}
	return "", fmt.Errorf("no next node for condition result %q at node %s", result, node.Name)
}

func (g *Graph) saveCheckpoint(ctx context.Context, threadID string, state State, next string) error {
	if g.checkpointer == nil || threadID == "" {
		return nil
	}
	cp := &Checkpoint{State: state.Clone(), Next: next}
	if err := g.checkpointer.Save(ctx, threadID, cp); err != nil {
		return fmt.Errorf("save checkpoint for thread %s: %w", threadID, err)
	}
	return nil
}

// GetNode returns a node by name
func (g *Graph) GetNode(name string) (*Node, error) {
	node, exists := g.nodes[name]
	if !exists {
		return nil, fmt.Errorf("node %s not found", name)
	}
	return node, nil
}

// Builder helps build graphs fluently
type Builder struct {
	graph *Graph
}

// NewBuilder creates a new graph builder
func NewBuilder() *Builder {
	return &Builder{
		graph: NewGraph(),
	}
}

// AddNode adds a node to the graph
func (b *Builder) AddNode(name string, nodeType NodeType, execute NodeFunc) *Builder {
	b.graph.AddNode(&Node{
		Name:    name,
		Type:    nodeType,
		Execute: execute,
	})
	return b
}

// AddConditionNode adds a condition node
func (b *Builder) AddConditionNode(name string, condition ConditionFunc, nextMap map[string]string) *Builder {
	b.graph.AddNode(&Node{
		Name:      name,
		Type:      NodeTypeCondition,
		Condition: condition,
		NextMap:   nextMap,
	})
	return b
}

// AddEdge connects two nodes. The target may be End.
func (b *Builder) AddEdge(from, to string) *Builder {
	node, exists := b.graph.nodes[from]
	if !exists {
		panic(fmt.Sprintf("node %s not found", from))
	}
	node.addNext(to)
	return b
}

// SetStart sets the start node
func (b *Builder) SetStart(name string) *Builder {
	b.graph.SetStartNode(name)
	return b
}

// SetMaxVisits sets the maximum number of visits to a node
func (b *Builder) SetMaxVisits(maxVisits int) *Builder {
	b.graph.SetMaxVisits(maxVisits)
	return b
}

// WithCheckpointer installs the checkpointer on the built graph.
func (b *Builder) WithCheckpointer(cp Checkpointer) *Builder {
	b.graph.SetCheckpointer(cp)
	return b
}

// InterruptBefore marks nodes the execution pauses ahead of.
func (b *Builder) InterruptBefore(names ...string) *Builder {
	b.graph.SetInterruptBefore(names...)
	return b
}

// Build returns the constructed graph
func (b *Builder) Build() *Graph {
	return b.graph
}

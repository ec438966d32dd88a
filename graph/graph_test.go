package graph

import (
	"context"
	"errors"
	"fmt"
	"testing"

	errorskg "github.com/izukaai/izuka/errors"
)

func passthrough(ctx context.Context, state State) (State, error) {
	return state, nil
}

func setFlag(key string) NodeFunc {
	return func(ctx context.Context, state State) (State, error) {
		state[key] = true
		return state, nil
	}
}

func TestNewGraph(t *testing.T) {
	g := NewGraph()
	if g == nil {
		t.Errorf("NewGraph returned nil")
	}
}

func TestAddNode(t *testing.T) {
	g := NewGraph()

	node := &Node{
		Name:    "test_node",
		Type:    NodeTypeCustom,
		Execute: passthrough,
	}

	g.AddNode(node)

	retrieved, err := g.GetNode("test_node")
	if err != nil {
		t.Errorf("Failed to retrieve added node: %v", err)
	}

	if retrieved.Name != "test_node" {
		t.Errorf("Retrieved node name mismatch")
	}
}

func TestAddNodeEmptyName(t *testing.T) {
	g := NewGraph()

	node := &Node{
		Name:    "",
		Type:    NodeTypeCustom,
		Execute: passthrough,
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected function to panic, but it did not")
		} else {
			if r != "node name cannot be empty" {
				t.Errorf("Expected panic value to be 'node name cannot be empty', but got %v", r)
			}
		}
	}()

	g.AddNode(node)
}

func TestAddNodeReservedName(t *testing.T) {
	g := NewGraph()

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for reserved node name")
		}
	}()

	g.AddNode(&Node{Name: End, Type: NodeTypeCustom, Execute: passthrough})
}

func TestAddNodeDuplicate(t *testing.T) {
	g := NewGraph()

	node1 := &Node{Name: "dup_node", Type: NodeTypeCustom, Execute: passthrough}
	node2 := &Node{Name: "dup_node", Type: NodeTypeCustom, Execute: passthrough}

	g.AddNode(node1)

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected function to panic, but it did not")
		} else {
			if r != "node dup_node already exists" {
				t.Errorf("Expected panic value to be 'node dup_node already exists', but got %v", r)
			}
		}
	}()
	g.AddNode(node2)
}

func TestAutoSetStartNode(t *testing.T) {
	g := NewGraph()

	startNode := &Node{
		Name:    "start",
		Type:    NodeTypeStart,
		Execute: passthrough,
	}

	g.AddNode(startNode)

	if g.startNode != "start" {
		t.Errorf("Start node not automatically set")
	}
}

func TestSetStartNodeNotFound(t *testing.T) {
	g := NewGraph()

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected function to panic, but it did not")
		} else {
			if r != "node nonexistent not found" {
				t.Errorf("Expected panic value to be 'node nonexistent not found', but got %v", r)
			}
		}
	}()

	g.SetStartNode("nonexistent")
}

func TestExecuteSimpleLinearGraph(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, setFlag("started")).
		AddNode("node1", NodeTypeCustom, setFlag("step1")).
		AddNode("node2", NodeTypeCustom, setFlag("step2")).
		AddEdge("start", "node1").
		AddEdge("node1", "node2").
		AddEdge("node2", End).
		Build()

	state, err := g.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Graph execution failed: %v", err)
	}

	for _, key := range []string{"started", "step1", "step2"} {
		if state[key] != true {
			t.Errorf("Node setting %q was not executed", key)
		}
	}
}

func TestExecuteWithCondition(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, func(ctx context.Context, state State) (State, error) {
			state["value"] = 5
			return state, nil
		}).
		AddConditionNode("decision", func(ctx context.Context, state State) (string, error) {
			if state["value"].(int) > 10 {
				return "high", nil
			}
			return "low", nil
		}, map[string]string{
			"high": "node_high",
			"low":  "node_low",
		}).
		AddNode("node_high", NodeTypeCustom, func(ctx context.Context, state State) (State, error) {
			state["branch"] = "high"
			return state, nil
		}).
		AddNode("node_low", NodeTypeCustom, func(ctx context.Context, state State) (State, error) {
			state["branch"] = "low"
			return state, nil
		}).
		AddEdge("start", "decision").
		AddEdge("node_high", End).
		AddEdge("node_low", End).
		Build()

	state, err := g.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Graph execution failed: %v", err)
	}

	if state["branch"] != "low" {
		t.Errorf("Expected low branch, got %v", state["branch"])
	}
}

func TestConditionRoutesDirectlyToEnd(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, setFlag("ran")).
		AddConditionNode("route", func(ctx context.Context, state State) (string, error) {
			return End, nil
		}, nil).
		AddEdge("start", "route").
		Build()

	state, err := g.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Graph execution failed: %v", err)
	}
	if state["ran"] != true {
		t.Errorf("Start node was not executed")
	}
}

func TestExecuteNoStartNode(t *testing.T) {
	g := NewGraph()

	node := &Node{Name: "node", Type: NodeTypeCustom, Execute: passthrough}
	g.AddNode(node)

	_, err := g.Execute(context.Background(), nil)
	if err == nil {
		t.Errorf("Expected error when executing graph without start node")
	}
}

func TestExecuteNodeNotFound(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, passthrough).
		AddEdge("start", "nonexistent").
		Build()

	_, err := g.Execute(context.Background(), nil)
	if err == nil {
		t.Errorf("Expected error when executing with non-existent next node")
	}
}

func TestExecuteInfiniteLoop(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, passthrough).
		AddNode("node1", NodeTypeCustom, passthrough).
		AddEdge("start", "node1").
		AddEdge("node1", "start").
		Build()

	_, err := g.Execute(context.Background(), nil)
	if err == nil {
		t.Errorf("Expected error for infinite loop")
	}
}

func TestExecuteWithInitialState(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, setFlag("processed")).
		AddEdge("start", End).
		Build()

	initialState := State{"initial": "value"}
	state, err := g.Execute(context.Background(), initialState)
	if err != nil {
		t.Fatalf("Execution failed: %v", err)
	}

	if state["initial"] != "value" {
		t.Errorf("Initial state not preserved")
	}

	if state["processed"] != true {
		t.Errorf("State not updated by node")
	}
}

func TestExecuteSavesCheckpointPerStep(t *testing.T) {
	saver := NewMemorySaver()
	g := NewBuilder().
		AddNode("start", NodeTypeStart, setFlag("a")).
		AddNode("middle", NodeTypeCustom, setFlag("b")).
		AddEdge("start", "middle").
		AddEdge("middle", End).
		WithCheckpointer(saver).
		Build()

	_, err := g.Execute(context.Background(), nil, WithThread("t1"))
	if err != nil {
		t.Fatalf("Execution failed: %v", err)
	}

	cp, err := saver.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp.Next != End {
		t.Errorf("Expected final checkpoint next %q, got %q", End, cp.Next)
	}
	if cp.State["a"] != true || cp.State["b"] != true {
		t.Errorf("Final checkpoint state incomplete: %v", cp.State)
	}
}

func TestInterruptBeforeAndResume(t *testing.T) {
	saver := NewMemorySaver()
	executions := make([]string, 0)

	record := func(name string) NodeFunc {
		return func(ctx context.Context, state State) (State, error) {
			executions = append(executions, name)
			return state, nil
		}
	}

	g := NewBuilder().
		AddNode("agent", NodeTypeLLM, record("agent")).
		AddNode("tools", NodeTypeTool, record("tools")).
		AddConditionNode("route", func(ctx context.Context, state State) (string, error) {
			if len(executions) < 2 {
				return "tools", nil
			}
			return End, nil
		}, map[string]string{"tools": "tools"}).
		AddEdge("agent", "route").
		AddEdge("tools", End).
		SetStart("agent").
		WithCheckpointer(saver).
		InterruptBefore("tools").
		Build()

	_, err := g.Execute(context.Background(), State{}, WithThread("t1"))
	if err == nil {
		t.Fatal("Expected interrupt error")
	}
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Expected ErrInterrupted, got %v", err)
	}
	var interrupt *InterruptError
	if !errors.As(err, &interrupt) {
		t.Fatalf("Expected InterruptError, got %T", err)
	}
	if interrupt.Node != "tools" {
		t.Errorf("Expected interrupt before tools, got %s", interrupt.Node)
	}
	if len(executions) != 1 || executions[0] != "agent" {
		t.Errorf("Expected only agent executed before interrupt, got %v", executions)
	}

	cp, err := saver.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp.Next != "tools" {
		t.Errorf("Expected pending node tools, got %q", cp.Next)
	}

	// Resume executes the pending node without re-triggering the interrupt.
	_, err = g.Resume(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if len(executions) != 2 || executions[1] != "tools" {
		t.Errorf("Expected tools executed on resume, got %v", executions)
	}
}

func TestResumeUnknownThread(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, passthrough).
		AddEdge("start", End).
		WithCheckpointer(NewMemorySaver()).
		Build()

	_, err := g.Resume(context.Background(), "missing")
	if err == nil {
		t.Fatal("Expected error for unknown thread")
	}
	if !errors.Is(err, errorskg.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResumeFinishedThreadReturnsState(t *testing.T) {
	saver := NewMemorySaver()
	g := NewBuilder().
		AddNode("start", NodeTypeStart, setFlag("done")).
		AddEdge("start", End).
		WithCheckpointer(saver).
		Build()

	if _, err := g.Execute(context.Background(), nil, WithThread("t1")); err != nil {
		t.Fatalf("Execution failed: %v", err)
	}

	state, err := g.Resume(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Resume of finished thread failed: %v", err)
	}
	if state["done"] != true {
		t.Errorf("Expected final state from checkpoint, got %v", state)
	}
}

func TestMemorySaverCopiesState(t *testing.T) {
	saver := NewMemorySaver()
	state := State{"count": 1}

	if err := saver.Save(context.Background(), "t1", &Checkpoint{State: state, Next: "node"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	state["count"] = 2

	cp, err := saver.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp.State["count"] != 1 {
		t.Errorf("Checkpoint shares state with caller: %v", cp.State)
	}
}

func TestBuilderAddEdgeUnknownFrom(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for unknown edge source")
		}
	}()

	NewBuilder().AddEdge("ghost", End)
}

func TestBuilderAddConditionNode(t *testing.T) {
	builder := NewBuilder()

	builder.AddConditionNode("condition", func(ctx context.Context, state State) (string, error) {
		return "result", nil
	}, map[string]string{"result": "next"})

	node, err := builder.graph.GetNode("condition")
	if err != nil {
		t.Errorf("Failed to get condition node: %v", err)
	}

	if node.Type != NodeTypeCondition {
		t.Errorf("Node type should be condition")
	}
}

func TestGetNodeNotFound(t *testing.T) {
	g := NewGraph()

	_, err := g.GetNode("nonexistent")
	if err == nil {
		t.Errorf("Expected error when getting non-existent node")
	}
}

func TestStateClone(t *testing.T) {
	original := State{"k": "v"}
	copied := original.Clone()
	copied["k"] = "changed"

	if original["k"] != "v" {
		t.Errorf("Clone mutated the original state")
	}

	if State(nil).Clone() != nil {
		t.Errorf("Clone of nil state should be nil")
	}
}

func TestMaxVisitsAllowsBoundedLoops(t *testing.T) {
	rounds := 0
	g := NewBuilder().
		AddNode("work", NodeTypeCustom, func(ctx context.Context, state State) (State, error) {
			rounds++
			return state, nil
		}).
		AddConditionNode("check", func(ctx context.Context, state State) (string, error) {
			if rounds < 3 {
				return "work", nil
			}
			return End, nil
		}, nil).
		AddEdge("work", "check").
		SetStart("work").
		SetMaxVisits(5).
		Build()

	if _, err := g.Execute(context.Background(), nil); err != nil {
		t.Fatalf("Bounded loop failed: %v", err)
	}
	if rounds != 3 {
		t.Errorf("Expected 3 rounds, got %d", rounds)
	}
}

func TestExecuteNodeError(t *testing.T) {
	g := NewBuilder().
		AddNode("start", NodeTypeStart, func(ctx context.Context, state State) (State, error) {
			return nil, fmt.Errorf("node blew up")
		}).
		AddEdge("start", End).
		Build()

	_, err := g.Execute(context.Background(), nil)
	if err == nil {
		t.Fatal("Expected execution error")
	}
}

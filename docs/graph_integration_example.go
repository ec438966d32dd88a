// Integration example: a review pipeline built directly on the graph
// engine, showing a routing condition, an interrupt gate ahead of the
// lookup stage and checkpoint-based resume.
//
// Run with:
//
//	go run ./docs
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/izukaai/izuka/graph"
)

const (
	nodeClassify = "classify"
	nodeRoute    = "route"
	nodeLookup   = "lookup"
	nodeAnswer   = "answer"
)

// classify decides whether the question needs fresh data before answering.
func classify(ctx context.Context, state graph.State) (graph.State, error) {
	question, _ := state["question"].(string)
	next := state.Clone()
	q := strings.ToLower(question)
	next["needs_lookup"] = strings.Contains(q, "current") || strings.Contains(q, "latest")
	return next, nil
}

func route(ctx context.Context, state graph.State) (string, error) {
	if needs, _ := state["needs_lookup"].(bool); needs {
		return nodeLookup, nil
	}
	return nodeAnswer, nil
}

// lookup stands in for an external data fetch. Because the pipeline is
// compiled with InterruptBefore(nodeLookup), execution pauses and persists
// right before this node runs.
func lookup(ctx context.Context, state graph.State) (graph.State, error) {
	question, _ := state["question"].(string)
	next := state.Clone()
	next["notes"] = "lookup result for: " + question
	return next, nil
}

func answer(ctx context.Context, state graph.State) (graph.State, error) {
	next := state.Clone()
	if notes, ok := state["notes"].(string); ok {
		next["answer"] = fmt.Sprintf("Based on fresh data (%s), here is the answer.", notes)
	} else {
		next["answer"] = "Answered from existing knowledge."
	}
	return next, nil
}

func buildPipeline(saver graph.Checkpointer) *graph.Graph {
	return graph.NewBuilder().
		AddNode(nodeClassify, graph.NodeTypeStart, classify).
		AddConditionNode(nodeRoute, route, map[string]string{
			nodeLookup: nodeLookup,
			nodeAnswer: nodeAnswer,
		}).
		AddNode(nodeLookup, graph.NodeTypeTool, lookup).
		AddNode(nodeAnswer, graph.NodeTypeLLM, answer).
		AddEdge(nodeClassify, nodeRoute).
		AddEdge(nodeLookup, nodeAnswer).
		AddEdge(nodeAnswer, graph.End).
		SetStart(nodeClassify).
		WithCheckpointer(saver).
		InterruptBefore(nodeLookup).
		Build()
}

func main() {
	ctx := context.Background()
	pipeline := buildPipeline(graph.NewMemorySaver())

	// A question that routes through the lookup gate: execution pauses
	// before the lookup node and persists the thread.
	state := graph.State{"question": "Who is the current mayor of San Francisco?"}
	_, err := pipeline.Execute(ctx, state, graph.WithThread("docs-1"))
	if errors.Is(err, graph.ErrInterrupted) {
		fmt.Println("paused before lookup, resuming from checkpoint")
	} else if err != nil {
		log.Fatal(err)
	}

	final, err := pipeline.Resume(ctx, "docs-1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(final["answer"])

	// A question answerable without a lookup runs straight through.
	state = graph.State{"question": "What is two plus two?"}
	final, err = pipeline.Execute(ctx, state, graph.WithThread("docs-2"))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(final["answer"])
}

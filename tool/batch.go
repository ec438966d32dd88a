package tool

import (
	"context"
	"fmt"
	"sync"
)

// Invocation identifies one requested tool call.
type Invocation struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Outcome is the result of a single invocation. Err is set only on the
// invocation that failed; the other outcomes in the batch are unaffected.
type Outcome struct {
	ID     string
	Name   string
	Output string
	Err    error
}

// Batch executes groups of tool invocations concurrently while keeping
// results in the order the invocations were issued.
type Batch struct {
	registry       *Registry
	maxConcurrency int
	semaphore      chan struct{}
}

// NewBatch creates a batch executor over the given registry.
func NewBatch(registry *Registry, maxConcurrency int) *Batch {
	if maxConcurrency <= 0 {
		maxConcurrency = 10 // Default concurrency
	}
	return &Batch{
		registry:       registry,
		maxConcurrency: maxConcurrency,
		semaphore:      make(chan struct{}, maxConcurrency),
	}
}

// Run executes all invocations and returns one outcome per invocation,
// index-aligned with the input slice.
func (b *Batch) Run(ctx context.Context, calls []Invocation) []Outcome {
	results := make([]Outcome, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(index int, inv Invocation) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[index] = Outcome{
						ID:   inv.ID,
						Name: inv.Name,
						Err:  fmt.Errorf("panic in tool %s: %v", inv.Name, r),
					}
				}
			}()

			// Acquire semaphore
			select {
			case b.semaphore <- struct{}{}:
				defer func() { <-b.semaphore }()
			case <-ctx.Done():
				results[index] = Outcome{ID: inv.ID, Name: inv.Name, Err: ctx.Err()}
				return
			}

			output, err := b.registry.Execute(ctx, inv.Name, inv.Args)
			results[index] = Outcome{
				ID:     inv.ID,
				Name:   inv.Name,
				Output: output,
				Err:    err,
			}
		}(i, call)
	}

	wg.Wait()
	return results
}

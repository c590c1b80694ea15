package tools

import (
	"context"
	"sync"
)

// FakeRunner records commands instead of executing them. When Fn is set it
// decides the outcome of each call; otherwise every call succeeds.
type FakeRunner struct {
	Fn func(cmd Command) (*Result, error)

	mu    sync.Mutex
	Calls []Command
}

// Run records cmd and returns Fn's result.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	f.mu.Unlock()

	if f.Fn != nil {
		return f.Fn(cmd)
	}
	return &Result{}, nil
}

// Commands returns a snapshot of the recorded calls.
func (f *FakeRunner) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.Calls))
	copy(out, f.Calls)
	return out
}

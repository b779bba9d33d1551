// Package clone manages sub-agent workers spawned by the orchestrator. A
// clone binds an agent to a single task string; clones run independently and
// the registry supports fan-out/fan-in execution over several of them.
package clone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"papermill/pkg/logx"
)

// Status tracks a clone's lifecycle. Completion is not contingent on
// success: a clone that returned an error is still completed.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Worker executes a single task and returns its textual output. Agents
// satisfy this through an adapter; tests use stubs.
type Worker interface {
	Run(ctx context.Context, task string) (string, error)
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context, task string) (string, error)

func (f WorkerFunc) Run(ctx context.Context, task string) (string, error) {
	return f(ctx, task)
}

// Clone is one spawned sub-agent bound to a task.
type Clone struct {
	ID     string
	Role   string
	Task   string
	Status Status

	worker Worker
}

// Result is the outcome of running one clone.
type Result struct {
	CloneID string
	Output  string
	Err     error
}

// Registry tracks spawned clones, keyed by clone id.
type Registry struct {
	mu     sync.Mutex
	clones map[string]*Clone
	seq    int
	logger *logx.Logger
}

// NewRegistry creates an empty clone registry.
func NewRegistry() *Registry {
	return &Registry{
		clones: make(map[string]*Clone),
		logger: logx.NewLogger("clones"),
	}
}

// Spawn registers a new running clone for a role and task.
func (r *Registry) Spawn(role, task string, worker Worker) *Clone {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	c := &Clone{
		ID:     fmt.Sprintf("%s-%d-%d", role, time.Now().UnixMilli(), r.seq),
		Role:   role,
		Task:   task,
		Status: StatusRunning,
		worker: worker,
	}
	r.clones[c.ID] = c

	r.logger.Debug("spawned clone %s", c.ID)
	return c
}

// Get returns the clone with the given id.
func (r *Registry) Get(id string) (*Clone, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clones[id]
	return c, ok
}

// List returns all registered clones.
func (r *Registry) List() []*Clone {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Clone, 0, len(r.clones))
	for _, c := range r.clones {
		out = append(out, c)
	}
	return out
}

// Run executes one clone to completion and records its status.
func (r *Registry) Run(ctx context.Context, c *Clone) Result {
	output, err := c.worker.Run(ctx, c.Task)

	r.mu.Lock()
	c.Status = StatusCompleted
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("clone %s failed: %v", c.ID, err)
	} else {
		r.logger.Debug("clone %s completed", c.ID)
	}

	return Result{CloneID: c.ID, Output: output, Err: err}
}

// RunAll executes clones concurrently and collects results in the order the
// clones were passed in, regardless of completion order. Every clone is
// marked completed when its worker returns, success or not.
func (r *Registry) RunAll(ctx context.Context, clones []*Clone) []Result {
	results := make([]Result, len(clones))

	var wg sync.WaitGroup
	for i, c := range clones {
		wg.Add(1)
		go func(i int, c *Clone) {
			defer wg.Done()
			results[i] = r.Run(ctx, c)
		}(i, c)
	}
	wg.Wait()

	return results
}

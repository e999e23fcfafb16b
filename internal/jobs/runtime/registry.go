package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownStage = errors.New("unknown stage")

// StageLogic is the domain work behind one stage endpoint.
type StageLogic interface {
	Stage() string
	Run(ctx *Context) (Result, error)
}

type Registry struct {
	mu    sync.RWMutex
	logic map[string]StageLogic
}

func NewRegistry() *Registry {
	return &Registry{logic: make(map[string]StageLogic)}
}

func (r *Registry) Register(l StageLogic) error {
	if l == nil {
		return fmt.Errorf("nil stage logic")
	}
	stage := l.Stage()
	if stage == "" {
		return fmt.Errorf("stage logic Stage() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.logic[stage]; exists {
		return fmt.Errorf("stage logic already registered for stage=%s", stage)
	}
	r.logic[stage] = l
	return nil
}

func (r *Registry) Get(stage string) (StageLogic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.logic[stage]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}
	return l, nil
}

// Resolve returns the registered logic, or a Noop for the stage.
func (r *Registry) Resolve(stage string) StageLogic {
	if l, err := r.Get(stage); err == nil {
		return l
	}
	return Noop{Name: stage}
}

func (r *Registry) Stages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.logic))
	for s := range r.logic {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Noop stands in for stages deployed without logic.
type Noop struct{ Name string }

func (n Noop) Stage() string { return n.Name }

func (n Noop) Run(*Context) (Result, error) { return ZeroResult(n.Name), nil }

type funcLogic struct {
	stage string
	fn    func(*Context) (Result, error)
}

// Func adapts a plain function to StageLogic.
func Func(stage string, fn func(*Context) (Result, error)) StageLogic {
	return funcLogic{stage: stage, fn: fn}
}

func (f funcLogic) Stage() string { return f.stage }

func (f funcLogic) Run(c *Context) (Result, error) { return f.fn(c) }

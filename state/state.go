package state

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 状态转换图: from -> to -> condition
type Graph[S comparable] struct {
	transitions map[S]map[S]func() bool
	mutex       sync.RWMutex
}

func NewGraph[S comparable]() *Graph[S] {
	return &Graph[S]{
		transitions: make(map[S]map[S]func() bool),
	}
}

// AddTransition registers from -> to. A nil condition always allows the move.
func (g *Graph[S]) AddTransition(from S, to S, condition func() bool) *Graph[S] {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, exists := g.transitions[from]; !exists {
		g.transitions[from] = make(map[S]func() bool)
	}
	g.transitions[from][to] = condition
	return g
}

// Allow registers unconditional transitions from one state to each target.
func (g *Graph[S]) Allow(from S, to ...S) *Graph[S] {
	for _, t := range to {
		g.AddTransition(from, t, nil)
	}
	return g
}

func (g *Graph[S]) CanTransition(from S, to S) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	conditions, exists := g.transitions[from]
	if !exists {
		return false
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

// ChangeState moves *current to next when the edge exists. Staying in place is
// always allowed.
func (g *Graph[S]) ChangeState(current *S, next S) error {
	if *current == next {
		return nil
	}
	if !g.CanTransition(*current, next) {
		return fmt.Errorf("%w: %v -> %v", ErrTransitionNotAllowed, *current, next)
	}
	*current = next
	return nil
}

// Targets lists the states reachable in one step from the given state.
func (g *Graph[S]) Targets(from S) []S {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	targets := make([]S, 0, len(g.transitions[from]))
	for to := range g.transitions[from] {
		targets = append(targets, to)
	}
	return targets
}

// Package automaton implements a small deterministic state machine:
// named states, named operations and a static transition table mapping
// (initial state, operation, operation result) to a final state.
//
// Tables are built once at startup and never mutated. Running an
// operation brackets it with a leaving callback on the current state
// and an entering callback on the destination state; a failing
// operation still reaches the entering callback with an EXCEPTION
// result so the caller always observes a final state.
package automaton

import (
	"context"
	"errors"
	"fmt"
)

// OperationResult is the outcome of one operation run.
type OperationResult string

const (
	OperationResultSuccess   OperationResult = "SUCCESS"
	OperationResultFailure   OperationResult = "FAILURE"
	OperationResultPending   OperationResult = "PENDING"
	OperationResultException OperationResult = "EXCEPTION"
)

var (
	ErrUnknownState      = errors.New("unknown_state")
	ErrUnknownOperation  = errors.New("unknown_operation")
	ErrMissingTransition = errors.New("missing_transition")
)

// State is a named node of the machine.
type State struct {
	Name string
}

// Operation is a named unit of work bound to a state transition.
type Operation struct {
	Name string
}

// Transition maps (initial state, operation, result) to a final state.
type Transition struct {
	InitialState string
	Operation    string
	Result       OperationResult
	FinalState   string
}

// OperationCallback performs the work of an operation and reports its result.
// A non-nil error forces the result to EXCEPTION regardless of the returned value.
type OperationCallback func(ctx context.Context) (OperationResult, error)

// LeavingStateCallback runs on the current state before the operation.
// An error aborts the run before the operation executes.
type LeavingStateCallback func(ctx context.Context, from State) error

// EnteringStateCallback runs on the destination state after the operation,
// including when the operation failed with EXCEPTION.
type EnteringStateCallback func(ctx context.Context, to State, result OperationResult) error

// StateMachine holds the static tables for one machine.
type StateMachine struct {
	name        string
	states      map[string]State
	operations  map[string]Operation
	transitions map[transitionKey]string
}

type transitionKey struct {
	initialState string
	operation    string
	result       OperationResult
}

// New validates the declarative table and builds a machine. Every
// transition must reference a declared state and operation.
func New(name string, states []string, operations []string, transitions []Transition) (*StateMachine, error) {
	sm := &StateMachine{
		name:        name,
		states:      make(map[string]State, len(states)),
		operations:  make(map[string]Operation, len(operations)),
		transitions: make(map[transitionKey]string, len(transitions)),
	}
	for _, s := range states {
		sm.states[s] = State{Name: s}
	}
	for _, o := range operations {
		sm.operations[o] = Operation{Name: o}
	}
	for _, t := range transitions {
		if _, ok := sm.states[t.InitialState]; !ok {
			return nil, fmt.Errorf("%s: transition from undeclared state %q: %w", name, t.InitialState, ErrUnknownState)
		}
		if _, ok := sm.states[t.FinalState]; !ok {
			return nil, fmt.Errorf("%s: transition to undeclared state %q: %w", name, t.FinalState, ErrUnknownState)
		}
		if _, ok := sm.operations[t.Operation]; !ok {
			return nil, fmt.Errorf("%s: transition via undeclared operation %q: %w", name, t.Operation, ErrUnknownOperation)
		}
		key := transitionKey{t.InitialState, t.Operation, t.Result}
		if existing, ok := sm.transitions[key]; ok && existing != t.FinalState {
			return nil, fmt.Errorf("%s: conflicting transitions from (%s, %s, %s)", name, t.InitialState, t.Operation, t.Result)
		}
		sm.transitions[key] = t.FinalState
	}
	return sm, nil
}

func (sm *StateMachine) Name() string { return sm.name }

// State looks up a declared state by name.
func (sm *StateMachine) State(name string) (State, error) {
	s, ok := sm.states[name]
	if !ok {
		return State{}, fmt.Errorf("%s: state %q: %w", sm.name, name, ErrUnknownState)
	}
	return s, nil
}

// HasState reports whether the machine declares the given state.
func (sm *StateMachine) HasState(name string) bool {
	_, ok := sm.states[name]
	return ok
}

// NextState resolves the transition table without running anything.
func (sm *StateMachine) NextState(from string, operation string, result OperationResult) (State, error) {
	final, ok := sm.transitions[transitionKey{from, operation, result}]
	if !ok {
		return State{}, fmt.Errorf("%s: no transition from (%s, %s, %s): %w", sm.name, from, operation, result, ErrMissingTransition)
	}
	return sm.states[final], nil
}

// RunOperation drives one operation from the given state:
//
//  1. run the leaving callback on the current state; an error aborts the
//     run unchanged, before any work executes,
//  2. run the operation; a returned error forces the EXCEPTION result,
//  3. resolve the transition table for the next state,
//  4. run the entering callback on the next state,
//
// and returns the reached state and the operation result. The work
// error, if any, is returned after the entering callback has run so
// that persisted state always reflects an outcome.
func (sm *StateMachine) RunOperation(
	ctx context.Context,
	fromState string,
	operation string,
	work OperationCallback,
	leaving LeavingStateCallback,
	entering EnteringStateCallback,
) (State, OperationResult, error) {
	from, err := sm.State(fromState)
	if err != nil {
		return State{}, "", err
	}
	if _, ok := sm.operations[operation]; !ok {
		return State{}, "", fmt.Errorf("%s: operation %q: %w", sm.name, operation, ErrUnknownOperation)
	}

	if leaving != nil {
		if err := leaving(ctx, from); err != nil {
			return from, "", err
		}
	}

	result, workErr := work(ctx)
	if workErr != nil {
		result = OperationResultException
	}

	to, err := sm.NextState(fromState, operation, result)
	if err != nil {
		return from, result, err
	}

	if entering != nil {
		if err := entering(ctx, to, result); err != nil {
			if workErr != nil {
				return to, result, workErr
			}
			return to, result, err
		}
	}

	return to, result, workErr
}

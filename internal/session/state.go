// ============================================================================
// KrishiSaathi - Multilingual Voice Assistant
// ============================================================================
//
// Package:     session
// Description: Conversation session - state machine
// Author:      Mike Stoffels
// Created:     2026-09-25
// License:     MIT
// ============================================================================

package session

import (
	"sync"
	"time"
)

// State represents the interaction state of a session
type State int

const (
	// StateIdle - waiting for speech or typed input
	StateIdle State = iota

	// StateListening - capturing user speech
	StateListening

	// StateRouting - waiting for the backend reply
	StateRouting

	// StateSpeaking - synthesizing the reply
	StateSpeaking
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateRouting:
		return "routing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Label returns the status text shown to the user
func (s State) Label() string {
	switch s {
	case StateIdle:
		return "Ready"
	case StateListening:
		return "Listening..."
	case StateRouting:
		return "Thinking..."
	case StateSpeaking:
		return "Speaking..."
	default:
		return "Unknown"
	}
}

// Icon returns an icon for the state
func (s State) Icon() string {
	switch s {
	case StateIdle:
		return "⏸"
	case StateListening:
		return "🎤"
	case StateRouting:
		return "⚙️"
	case StateSpeaking:
		return "🔊"
	default:
		return "?"
	}
}

// validTransitions lists the allowed successor states
var validTransitions = map[State][]State{
	StateIdle:      {StateListening, StateRouting},
	StateListening: {StateRouting, StateIdle},
	StateRouting:   {StateSpeaking, StateIdle},
	StateSpeaking:  {StateIdle},
}

// StateChangeListener is called when state changes
type StateChangeListener func(oldState, newState State)

// StateMachine manages state transitions
type StateMachine struct {
	mu            sync.RWMutex
	currentState  State
	previousState State
	stateTime     time.Time
	listeners     []StateChangeListener
}

// NewStateMachine creates a new state machine in StateIdle
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState: StateIdle,
		stateTime:    time.Now(),
	}
}

// Current returns the current state
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// Previous returns the previous state
func (sm *StateMachine) Previous() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.previousState
}

// StateDuration returns how long we've been in the current state
func (sm *StateMachine) StateDuration() time.Duration {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return time.Since(sm.stateTime)
}

// Transition changes to a new state if the move is allowed
func (sm *StateMachine) Transition(newState State) bool {
	sm.mu.Lock()
	oldState := sm.currentState

	if !isValidTransition(oldState, newState) {
		sm.mu.Unlock()
		return false
	}

	sm.previousState = oldState
	sm.currentState = newState
	sm.stateTime = time.Now()
	listeners := sm.listeners
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener(oldState, newState)
	}
	return true
}

// AddListener adds a state change listener
func (sm *StateMachine) AddListener(listener StateChangeListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, listener)
}

// Reset forces the machine back to idle
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	oldState := sm.currentState
	if oldState == StateIdle {
		sm.mu.Unlock()
		return
	}
	sm.previousState = oldState
	sm.currentState = StateIdle
	sm.stateTime = time.Now()
	listeners := sm.listeners
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener(oldState, StateIdle)
	}
}

// IsActive returns true while capture, routing or synthesis is running
func (sm *StateMachine) IsActive() bool {
	return sm.Current() != StateIdle
}

func isValidTransition(from, to State) bool {
	for _, valid := range validTransitions[from] {
		if valid == to {
			return true
		}
	}
	return false
}

// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	// MaxSessions caps how many live sessions the manager holds
	// before pruning kicks in.
	MaxSessions = 64

	// protectedRecent is how many of the most recently used sessions
	// pruning never touches.
	protectedRecent = 8
)

// UnknownSessionError reports a process id with no live session.
type UnknownSessionError struct {
	ProcessID string
}

func (e *UnknownSessionError) Error() string {
	return fmt.Sprintf("unknown session %q", e.ProcessID)
}

type entry struct {
	session  *Session
	command  []string
	lastUsed time.Time
}

// ManagerConfig holds configuration for a Manager.
type ManagerConfig struct {
	// DeterministicIDs allocates monotonically increasing process
	// ids starting at 1000 instead of random ones. For tests.
	DeterministicIDs bool

	// Logger for manager operations.
	Logger *slog.Logger
}

// Manager holds long-lived sessions keyed by process id so later
// calls can write stdin and collect more output. Ids are reserved
// before spawn and released when the session ends, so a slow spawn
// never races an id reuse.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	reserved map[string]struct{}

	deterministic bool
	logger        *slog.Logger
}

// NewManager creates an empty Manager.
func NewManager(config ManagerConfig) *Manager {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:      make(map[string]*entry),
		reserved:      make(map[string]struct{}),
		deterministic: config.DeterministicIDs,
		logger:        logger,
	}
}

// AllocateProcessID reserves and returns a fresh process id.
func (m *Manager) AllocateProcessID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		var id string
		if m.deterministic {
			next := 999
			for reserved := range m.reserved {
				if n, err := strconv.Atoi(reserved); err == nil && n > next {
					next = n
				}
			}
			id = strconv.Itoa(next + 1)
		} else {
			id = strconv.Itoa(rand.IntN(99_000) + 1_000)
		}
		if _, taken := m.reserved[id]; taken {
			continue
		}
		m.reserved[id] = struct{}{}
		return id
	}
}

// ReleaseProcessID drops a session and its id reservation.
func (m *Manager) ReleaseProcessID(processID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(processID)
}

func (m *Manager) removeLocked(processID string) *entry {
	e := m.sessions[processID]
	delete(m.sessions, processID)
	delete(m.reserved, processID)
	return e
}

// Store registers a live session under its reserved id, pruning first
// if the store is at capacity. Returns the resulting session count.
func (m *Manager) Store(processID string, s *Session, command []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pruneLocked()
	m.sessions[processID] = &entry{
		session:  s,
		command:  command,
		lastUsed: time.Now(),
	}
	m.reserved[processID] = struct{}{}
	return len(m.sessions)
}

// Get returns the live session for processID, refreshing its
// last-used time. A stored session whose process has exited is
// removed and reported as unknown; it cannot accept further input.
func (m *Manager) Get(processID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.sessions[processID]
	if !ok {
		return nil, &UnknownSessionError{ProcessID: processID}
	}
	if e.session.HasExited() {
		m.removeLocked(processID)
		return nil, &UnknownSessionError{ProcessID: processID}
	}
	e.lastUsed = time.Now()
	return e.session, nil
}

// WriteStdin sends data to a live session's process.
func (m *Manager) WriteStdin(processID string, data []byte) error {
	s, err := m.Get(processID)
	if err != nil {
		return err
	}
	return s.WriteStdin(data)
}

// Len returns the number of stored sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// TerminateAll kills every stored session and clears the store.
func (m *Manager) TerminateAll() {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.sessions = make(map[string]*entry)
	m.reserved = make(map[string]struct{})
	m.mu.Unlock()

	for _, e := range entries {
		e.session.Terminate()
	}
}

// pruneLocked evicts one session when the store is at capacity.
func (m *Manager) pruneLocked() {
	if len(m.sessions) < MaxSessions {
		return
	}

	meta := make([]sessionMeta, 0, len(m.sessions))
	for id, e := range m.sessions {
		meta = append(meta, sessionMeta{
			processID: id,
			lastUsed:  e.lastUsed,
			exited:    e.session.HasExited(),
		})
	}

	victim, ok := sessionIDToPrune(meta)
	if !ok {
		return
	}
	if e := m.removeLocked(victim); e != nil {
		m.logger.Debug("pruned session", "process_id", victim)
		e.session.Terminate()
	}
}

type sessionMeta struct {
	processID string
	lastUsed  time.Time
	exited    bool
}

// sessionIDToPrune picks the eviction victim: never one of the
// protectedRecent most recently used; among the rest, the least
// recently used exited session, falling back to the least recently
// used overall. Centralized so the strategy can be swapped later.
func sessionIDToPrune(meta []sessionMeta) (string, bool) {
	if len(meta) == 0 {
		return "", false
	}

	byRecency := make([]sessionMeta, len(meta))
	copy(byRecency, meta)
	sort.Slice(byRecency, func(i, j int) bool {
		return byRecency[i].lastUsed.After(byRecency[j].lastUsed)
	})
	protected := make(map[string]struct{})
	for i := 0; i < len(byRecency) && i < protectedRecent; i++ {
		protected[byRecency[i].processID] = struct{}{}
	}

	lru := make([]sessionMeta, len(meta))
	copy(lru, meta)
	sort.Slice(lru, func(i, j int) bool {
		return lru[i].lastUsed.Before(lru[j].lastUsed)
	})

	for _, candidate := range lru {
		if _, ok := protected[candidate.processID]; ok {
			continue
		}
		if candidate.exited {
			return candidate.processID, true
		}
	}
	for _, candidate := range lru {
		if _, ok := protected[candidate.processID]; !ok {
			return candidate.processID, true
		}
	}
	return "", false
}

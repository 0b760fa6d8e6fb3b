// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scratch hands out per-operation working directories that are
// removed as a whole when the operation ends.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/mediaops/internal/log"
	"github.com/ManuGH/mediaops/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const areaPrefix = "op-"

// Manager owns the scratch root. Areas are never shared between operations.
type Manager struct {
	root   string
	logger zerolog.Logger

	mu     sync.Mutex
	active map[string]*Area
}

// NewManager creates the scratch root if needed.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("scratch root must not be empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &Manager{
		root:   root,
		logger: log.WithComponent("scratch"),
		active: make(map[string]*Area),
	}, nil
}

// Root returns the directory holding all areas.
func (m *Manager) Root() string { return m.root }

// Scope creates a fresh area for owner. The caller must Close it.
func (m *Manager) Scope(owner string) (*Area, error) {
	name := areaPrefix + sanitize(owner) + "-" + uuid.NewString()
	dir := filepath.Join(m.root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch area: %w", err)
	}

	a := &Area{dir: dir, mgr: m}
	m.mu.Lock()
	m.active[dir] = a
	m.mu.Unlock()
	metrics.ScratchAreasActive.Inc()

	m.logger.Debug().Str(log.FieldEvent, "scratch.scope").Str(log.FieldScratchDir, dir).Msg("scratch area created")
	return a, nil
}

// Active returns the number of open areas.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep removes areas left behind by a previous process. It must run before
// any Scope call of the current process.
func (m *Manager) Sweep() (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read scratch root: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), areaPrefix) {
			continue
		}
		dir := filepath.Join(m.root, e.Name())
		if _, live := m.active[dir]; live {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			metrics.ScratchCleanupFailuresTotal.Inc()
			m.logger.Warn().Err(err).Str(log.FieldScratchDir, dir).Msg("failed to sweep orphaned scratch area")
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info().Str(log.FieldEvent, "scratch.sweep").Int("removed", removed).Msg("removed orphaned scratch areas")
	}
	return removed, nil
}

func (m *Manager) release(a *Area) {
	m.mu.Lock()
	delete(m.active, a.dir)
	m.mu.Unlock()
	metrics.ScratchAreasActive.Dec()
}

// Area is a directory owned by a single operation.
type Area struct {
	dir string
	mgr *Manager
	seq atomic.Uint64

	mu      sync.Mutex
	holds   int
	closing bool
	removed bool
	err     error
}

// Dir returns the area directory.
func (a *Area) Dir() string { return a.dir }

// Allocate returns a unique, not yet existing path inside the area.
func (a *Area) Allocate(suffix string) string {
	n := a.seq.Add(1)
	return filepath.Join(a.dir, fmt.Sprintf("%04d%s", n, sanitizeSuffix(suffix)))
}

// Hold keeps the area on disk past Close until the returned release func
// is called. Workers that may outlive the operation take a hold before
// they start writing.
func (a *Area) Hold() (release func()) {
	a.mu.Lock()
	a.holds++
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.holds--
			last := a.closing && a.holds == 0 && !a.removed
			if last {
				a.removed = true
			}
			a.mu.Unlock()
			if last {
				if err := a.remove(); err != nil {
					a.mgr.logger.Warn().Err(err).Str(log.FieldScratchDir, a.dir).Msg("deferred scratch cleanup failed")
				}
			}
		})
	}
}

// Close removes the area and everything in it. With holds outstanding the
// removal happens when the last hold is released. It is idempotent.
func (a *Area) Close() error {
	a.mu.Lock()
	if a.closing {
		err := a.err
		a.mu.Unlock()
		return err
	}
	a.closing = true
	if a.holds > 0 {
		a.mu.Unlock()
		return nil
	}
	a.removed = true
	a.mu.Unlock()
	return a.remove()
}

func (a *Area) remove() error {
	err := os.RemoveAll(a.dir)
	if err != nil {
		metrics.ScratchCleanupFailuresTotal.Inc()
		err = fmt.Errorf("remove scratch area: %w", err)
	}
	a.mgr.release(a)
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	return err
}

func sanitize(owner string) string {
	var b strings.Builder
	for _, r := range owner {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
		if b.Len() >= 32 {
			break
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

func sanitizeSuffix(s string) string {
	s = filepath.Base(s)
	if s == "." || s == string(filepath.Separator) {
		return ""
	}
	return s
}

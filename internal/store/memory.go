// Package store contains the in-memory persistence layer. It implements the
// store interfaces of the catalog, workflow, ledger, identity, and worker
// packages and is the default backend when no database is configured; it also
// backs the test suites.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// Memory guards every table with a single RWMutex: reads run concurrently,
// writes are serialized, which gives the single-writer-per-entity semantics
// the state machine relies on.
type Memory struct {
	mu sync.RWMutex

	processTypes  map[string]*model.ProcessType
	templates     map[string]*model.ProcessTemplate
	stepTemplates map[string]*model.StepTemplate
	instances     map[string]*model.ProcessInstance
	steps         map[string]*model.StepInstance
	files         map[string]*model.FileVersion
	users         map[string]*model.User
	archiveOps    map[string]*model.ArchiveOperation
	audits        []model.AuditEntry
	exports       []model.ExportLog
	notifications []model.Notification
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{
		processTypes:  make(map[string]*model.ProcessType),
		templates:     make(map[string]*model.ProcessTemplate),
		stepTemplates: make(map[string]*model.StepTemplate),
		instances:     make(map[string]*model.ProcessInstance),
		steps:         make(map[string]*model.StepInstance),
		files:         make(map[string]*model.FileVersion),
		users:         make(map[string]*model.User),
		archiveOps:    make(map[string]*model.ArchiveOperation),
	}
}

func notFound(entity, id string) error {
	return fmt.Errorf("%s %s: %w", entity, id, workflow.ErrNotFound)
}

// --- catalog ---

func (m *Memory) CreateProcessType(_ context.Context, pt *model.ProcessType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *pt
	m.processTypes[pt.ID] = &cp
	return nil
}

func (m *Memory) ProcessTypeByID(_ context.Context, id string) (*model.ProcessType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pt, ok := m.processTypes[id]
	if !ok {
		return nil, notFound("process type", id)
	}
	// Returning a copy prevents callers from mutating internal state.
	cp := *pt
	return &cp, nil
}

func (m *Memory) SaveProcessType(_ context.Context, pt *model.ProcessType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processTypes[pt.ID]; !ok {
		return notFound("process type", pt.ID)
	}
	cp := *pt
	m.processTypes[pt.ID] = &cp
	return nil
}

func (m *Memory) ListProcessTypes(_ context.Context, activeOnly bool) ([]model.ProcessType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.ProcessType, 0, len(m.processTypes))
	for _, pt := range m.processTypes {
		if activeOnly && !pt.Active {
			continue
		}
		out = append(out, *pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) CreateTemplate(_ context.Context, tpl *model.ProcessTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tpl
	m.templates[tpl.ID] = &cp
	return nil
}

func (m *Memory) TemplateByID(_ context.Context, id string) (*model.ProcessTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, notFound("template", id)
	}
	cp := *tpl
	return &cp, nil
}

func (m *Memory) SaveTemplate(_ context.Context, tpl *model.ProcessTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[tpl.ID]; !ok {
		return notFound("template", tpl.ID)
	}
	cp := *tpl
	m.templates[tpl.ID] = &cp
	return nil
}

func (m *Memory) ListTemplates(_ context.Context, processTypeID string, publishedOnly bool) ([]model.ProcessTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.ProcessTemplate
	for _, tpl := range m.templates {
		if processTypeID != "" && tpl.ProcessTypeID != processTypeID {
			continue
		}
		if publishedOnly && !tpl.Published {
			continue
		}
		out = append(out, *tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Memory) CreateStepTemplate(_ context.Context, st *model.StepTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	m.stepTemplates[st.ID] = &cp
	return nil
}

func (m *Memory) StepTemplatesByTemplate(_ context.Context, templateID string) ([]model.StepTemplate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.StepTemplate
	for _, st := range m.stepTemplates {
		if st.TemplateID == templateID {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ord < out[j].Ord })
	return out, nil
}

// --- identity ---

func (m *Memory) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return &workflow.ValidationError{Entity: "user", Field: "email", Reason: "is already in use"}
		}
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) UserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	return &cp, nil
}

func (m *Memory) UserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			cp.Roles = append([]string(nil), u.Roles...)
			return &cp, nil
		}
	}
	return nil, notFound("user", email)
}

func (m *Memory) SaveUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return notFound("user", u.ID)
	}
	cp := *u
	cp.Roles = append([]string(nil), u.Roles...)
	m.users[u.ID] = &cp
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		cp.Roles = append([]string(nil), u.Roles...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func nowUTC() time.Time { return time.Now().UTC() }

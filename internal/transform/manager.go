package transform

import (
	"errors"
	"sort"
	"sync"

	"github.com/Ko-stant/room-layout-sync/internal/snap"
)

var ErrNoItem = errors.New("gesture has no item id")

// Manager routes gestures to one Controller per item. A controller lives from
// Start to End.
type Manager struct {
	mu          sync.Mutex
	doc         Document
	pipeline    snap.Pipeline
	settings    Settings
	controllers map[string]*Controller
}

func NewManager(doc Document, pipeline snap.Pipeline, settings Settings) *Manager {
	return &Manager{
		doc:         doc,
		pipeline:    pipeline,
		settings:    settings,
		controllers: make(map[string]*Controller),
	}
}

// SetSettings changes the toggles for gestures started afterwards.
func (m *Manager) SetSettings(s Settings) {
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
}

func (m *Manager) Handle(g Gesture) (Result, error) {
	if g.Item == "" {
		return Result{}, ErrNoItem
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.controllers[g.Item]
	if !ok {
		if g.Kind != Start {
			return Result{State: Idle}, ErrNotDragging
		}
		c = NewController(g.Item, m.doc, m.pipeline, m.settings)
	}

	res, err := c.Handle(g)
	if c.State() == Dragging {
		m.controllers[g.Item] = c
	} else {
		delete(m.controllers, g.Item)
	}
	return res, err
}

// Dragging lists the items currently in a gesture.
func (m *Manager) Dragging() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

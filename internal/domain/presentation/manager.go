package presentation

import (
	"errors"
	"fmt"
	"sort"

	"github.com/GriffinCanCode/notchkit/pkg/descriptor"
)

// ErrWrongKind is returned when a descriptor is offered to another kind's region.
var ErrWrongKind = errors.New("descriptor kind does not match region")

type key struct {
	owner string
	id    string
}

// Entry is one active descriptor.
type Entry[D descriptor.Descriptor] struct {
	Owner      string
	Descriptor D
	Seq        uint64
}

// Manager is the active set and arbitration for one kind.
type Manager[D descriptor.Descriptor] struct {
	kind         descriptor.Kind
	slots        int
	entries      map[key]*Entry[D]
	seq          uint64
	nativeActive bool
}

// New creates a manager rendering at most slots items at once.
func New[D descriptor.Descriptor](kind descriptor.Kind, slots int) *Manager[D] {
	if slots < 1 {
		slots = 1
	}
	return &Manager[D]{
		kind:    kind,
		slots:   slots,
		entries: make(map[key]*Entry[D]),
	}
}

// Kind returns the region's descriptor kind.
func (m *Manager[D]) Kind() descriptor.Kind { return m.kind }

// Present inserts or overwrites the (owner, id) entry. It reports whether
// an entry was replaced.
func (m *Manager[D]) Present(owner string, d D) bool {
	m.seq++
	k := key{owner: owner, id: d.Identifier()}
	_, replaced := m.entries[k]
	m.entries[k] = &Entry[D]{Owner: owner, Descriptor: d, Seq: m.seq}
	return replaced
}

// Update refreshes an entry. Updating an unknown id presents it.
func (m *Manager[D]) Update(owner string, d D) bool {
	return m.Present(owner, d)
}

// Dismiss removes the entry and reports whether it existed.
func (m *Manager[D]) Dismiss(owner, id string) bool {
	k := key{owner: owner, id: id}
	if _, ok := m.entries[k]; !ok {
		return false
	}
	delete(m.entries, k)
	return true
}

// RemoveOwner drops every entry owned by owner and returns their ids, sorted.
func (m *Manager[D]) RemoveOwner(owner string) []string {
	var ids []string
	for k := range m.entries {
		if k.owner == owner {
			ids = append(ids, k.id)
			delete(m.entries, k)
		}
	}
	sort.Strings(ids)
	return ids
}

// Get returns the entry for (owner, id).
func (m *Manager[D]) Get(owner, id string) (Entry[D], bool) {
	e, ok := m.entries[key{owner: owner, id: id}]
	if !ok {
		return Entry[D]{}, false
	}
	return *e, true
}

// Len is the size of the active set.
func (m *Manager[D]) Len() int { return len(m.entries) }

// Ranked returns every entry in arbitration order.
func (m *Manager[D]) Ranked() []Entry[D] {
	out := make([]Entry[D], 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Descriptor.Priority().Rank(), out[j].Descriptor.Priority().Rank()
		if pi != pj {
			return pi > pj
		}
		return out[i].Seq > out[j].Seq
	})
	return out
}

// Current returns the winning entry, if any.
func (m *Manager[D]) Current() (Entry[D], bool) {
	ranked := m.Ranked()
	if len(ranked) == 0 {
		return Entry[D]{}, false
	}
	return ranked[0], true
}

// SetNativeActive records whether the host's own content occupies the region.
func (m *Manager[D]) SetNativeActive(active bool) { m.nativeActive = active }

// NativeActive reports the last value passed to SetNativeActive.
func (m *Manager[D]) NativeActive() bool { return m.nativeActive }

// View derives what the region should render.
func (m *Manager[D]) View() View {
	ranked := m.Ranked()
	v := View{
		Kind:         m.kind,
		Slots:        m.slots,
		NativeActive: m.nativeActive,
		Active:       len(ranked),
		Items:        []Item{},
	}
	if len(ranked) > m.slots {
		ranked = ranked[:m.slots]
	}
	for _, e := range ranked {
		if m.nativeActive && !e.Descriptor.AllowsCoexistence() {
			continue
		}
		v.Items = append(v.Items, Item{
			Owner:      e.Owner,
			ID:         e.Descriptor.Identifier(),
			Priority:   e.Descriptor.Priority(),
			Coexists:   e.Descriptor.AllowsCoexistence(),
			Descriptor: e.Descriptor,
		})
	}
	return v
}

// Accept implements Region by asserting d to the manager's type.
func (m *Manager[D]) Accept(owner string, d descriptor.Descriptor) error {
	typed, ok := d.(D)
	if !ok {
		return fmt.Errorf("%w: %s region got %s", ErrWrongKind, m.kind, d.Kind())
	}
	m.Present(owner, typed)
	return nil
}

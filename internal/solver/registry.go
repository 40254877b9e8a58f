package solver

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ID is the opaque 128-bit solver selector. Only equality is meaningful.
type ID = uuid.UUID

var (
	// MayflyID selects the Mayfly algorithm, the default solver.
	MayflyID = uuid.MustParse("01274b08-f721-42bc-a562-0556714c5685")
	// HaltonID selects quasi-random Halton sequence sampling.
	HaltonID = uuid.MustParse("8a0f6a1e-3d2b-4c55-9a3e-6b1f0e9d7c21")
)

// DefaultID is used when no solver is requested.
var DefaultID = MayflyID

// ParseID parses the textual form of a solver id. Braced GUID notation,
// e.g. {01274B08-F721-42BC-A562-0556714C5685}, is accepted as well.
func ParseID(s string) (ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed solver id %q: %w", s, err)
	}
	return id, nil
}

// Algorithm is one searchable strategy behind a descriptor. Budget reports
// an upper bound on the objective calls Search makes for the same arguments.
type Algorithm interface {
	Budget(dim int, params Params) (uint64, error)
	Search(p *Problem, params Params) error
}

// Descriptor describes a registered solver.
type Descriptor struct {
	ID          ID
	Description string
	// Specialized solvers are hidden from usage listings.
	Specialized bool
	Algorithm   Algorithm
}

// Registry maps solver ids to descriptors, keeping registration order.
type Registry struct {
	mu          sync.RWMutex
	descriptors []Descriptor
}

// NewRegistry returns a registry preloaded with the built-in solvers.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(Descriptor{ID: MayflyID, Description: "Mayfly optimization algorithm", Algorithm: &Mayfly{}})
	r.Register(Descriptor{ID: HaltonID, Description: "Halton sequence quasi-random sampling", Algorithm: &Halton{}})
	return r
}

// Register adds d, replacing any descriptor with the same id.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.descriptors {
		if r.descriptors[i].ID == d.ID {
			r.descriptors[i] = d
			return
		}
	}
	r.descriptors = append(r.descriptors, d)
}

// Lookup resolves an id to its descriptor.
func (r *Registry) Lookup(id ID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.descriptors {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Descriptors returns all registered descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Descriptor(nil), r.descriptors...)
}

// FormatID renders an id in the braced upper-case GUID form used in listings.
func FormatID(id ID) string {
	return "{" + strings.ToUpper(id.String()) + "}"
}

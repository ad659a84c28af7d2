// Package primitive stores the named geometric primitives that task
// definitions refer to.
//
// Primitives live in an arena addressed by generational handles. A task keeps
// the handle it resolved at construction; once the primitive is removed, or
// replaced by one of a different kind, the handle expires and resolving it
// fails with ErrHandleExpired instead of silently reading stale geometry.
package primitive

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/taskstack/internal/faults"
)

// Registry errors.
var (
	ErrInvalidParameterCount = fmt.Errorf("%w: invalid parameter count", faults.ErrValidation)
	ErrInvalidParameter      = fmt.Errorf("%w: invalid primitive parameter", faults.ErrValidation)
	ErrUnknownKind           = fmt.Errorf("%w: unknown primitive kind", faults.ErrValidation)
	ErrKindMismatch          = fmt.Errorf("%w: primitive kind mismatch", faults.ErrValidation)
	ErrNotFound              = fmt.Errorf("%w: primitive", faults.ErrNotFound)
	ErrHandleExpired         = fmt.Errorf("%w: primitive removed or replaced", faults.ErrHandleExpired)
)

// DefaultColor is used when a primitive is registered without a color.
var DefaultColor = [4]float64{0.5, 0.5, 0.5, 1}

// Spec is the user-facing description of a primitive.
type Spec struct {
	Name    string    `json:"name" toml:"name"`
	Kind    string    `json:"kind" toml:"kind"`
	FrameID string    `json:"frame" toml:"frame"`
	Visible bool      `json:"visible" toml:"visible"`
	Color   []float64 `json:"color,omitempty" toml:"color"`
	Params  []float64 `json:"params" toml:"params"`
}

// Primitive is a registered, frame-attached shape.
type Primitive struct {
	Name    string
	FrameID string
	Visible bool
	Color   [4]float64
	Shape   Shape
}

// Kind returns the kind of the primitive's shape.
func (p *Primitive) Kind() Kind { return p.Shape.Kind() }

// Handle addresses a primitive slot. The zero Handle never resolves.
type Handle struct {
	Index      uint32
	Generation uint32
}

type slot struct {
	prim       *Primitive
	generation uint32
}

// Registry is the named primitive store.
type Registry struct {
	mu     sync.RWMutex
	slots  []slot
	free   []uint32
	byName map[string]uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]uint32)}
}

// Build validates spec and constructs the primitive without registering it.
func Build(spec Spec) (*Primitive, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidParameter)
	}
	if spec.FrameID == "" {
		return nil, fmt.Errorf("%w: primitive %q has no frame", ErrInvalidParameter, spec.Name)
	}
	kind, err := ParseKind(spec.Kind)
	if err != nil {
		return nil, err
	}
	color, err := parseColor(spec.Color)
	if err != nil {
		return nil, err
	}
	shape, err := NewShape(kind, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("primitive %q: %w", spec.Name, err)
	}
	return &Primitive{
		Name:    spec.Name,
		FrameID: spec.FrameID,
		Visible: spec.Visible,
		Color:   color,
		Shape:   shape,
	}, nil
}

// Upsert registers or replaces the primitive described by spec. On failure the
// registry is unchanged. A replacement of the same kind keeps the handle, so
// tasks referencing the primitive see the new geometry on their next update.
func (r *Registry) Upsert(spec Spec) (Handle, error) {
	prim, err := Build(spec)
	if err != nil {
		return Handle{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byName[prim.Name]; ok {
		s := &r.slots[idx]
		if s.prim.Kind() == prim.Kind() {
			s.prim = prim
			return Handle{Index: idx, Generation: s.generation}, nil
		}
		r.retire(idx)
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{generation: 1})
	}
	r.slots[idx].prim = prim
	r.byName[prim.Name] = idx
	return Handle{Index: idx, Generation: r.slots[idx].generation}, nil
}

// retire frees a slot and invalidates every outstanding handle to it.
// Callers hold r.mu.
func (r *Registry) retire(idx uint32) {
	s := &r.slots[idx]
	delete(r.byName, s.prim.Name)
	s.prim = nil
	s.generation++
	r.free = append(r.free, idx)
}

// Get returns the primitive registered under name.
func (r *Registry) Get(name string) (*Primitive, Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return nil, Handle{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	s := r.slots[idx]
	return s.prim, Handle{Index: idx, Generation: s.generation}, nil
}

// Lookup returns the primitive registered under name and its shape as S.
// It fails with ErrKindMismatch if the primitive is of another kind.
func Lookup[S Shape](r *Registry, name string) (*Primitive, S, Handle, error) {
	var zero S
	prim, h, err := r.Get(name)
	if err != nil {
		return nil, zero, Handle{}, err
	}
	shape, ok := prim.Shape.(S)
	if !ok {
		return nil, zero, Handle{}, fmt.Errorf("%w: %q is a %s, want %s", ErrKindMismatch, name, prim.Kind(), zero.Kind())
	}
	return prim, shape, h, nil
}

// Resolve dereferences a handle.
func (r *Registry) Resolve(h Handle) (*Primitive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(h.Index) >= len(r.slots) {
		return nil, ErrHandleExpired
	}
	s := r.slots[h.Index]
	if s.prim == nil || s.generation != h.Generation {
		return nil, ErrHandleExpired
	}
	return s.prim, nil
}

// Remove deletes the primitive registered under name. Tasks still referencing
// it fail on their next update.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	r.retire(idx)
	return nil
}

// RemoveAll deletes every primitive.
func (r *Registry) RemoveAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, idx := range r.byName {
		r.retire(idx)
	}
}

// List returns all primitives sorted by name.
func (r *Registry) List() []*Primitive {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Primitive, 0, len(r.byName))
	for _, idx := range r.byName {
		out = append(out, r.slots[idx].prim)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered primitives.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

func parseColor(c []float64) ([4]float64, error) {
	switch len(c) {
	case 0:
		return DefaultColor, nil
	case 3:
		return [4]float64{c[0], c[1], c[2], 1}, nil
	case 4:
		return [4]float64{c[0], c[1], c[2], c[3]}, nil
	}
	return [4]float64{}, fmt.Errorf("%w: color takes 3 or 4 components, got %d", ErrInvalidParameterCount, len(c))
}

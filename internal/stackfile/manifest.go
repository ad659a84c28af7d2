// Package stackfile reads task stack manifests: TOML documents listing the
// primitives and tasks a controller should run, applied in one step and
// optionally reloaded when the file changes.
//
// Example manifest:
//
//	[[primitive]]
//	name = "floor"
//	kind = "plane"
//	frame = "world"
//	visible = true
//	params = [0.0, 0.0, 1.0, 0.0]
//
//	[[task]]
//	name = "stay_above_floor"
//	priority = 1
//	active = true
//	monitored = true
//	definition = ["TDefGeomProj", "point", "plane", "tip", "floor", ">"]
//	dynamics = ["TDynFirstOrder", "1.0"]
package stackfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/taskstack/internal/faults"
	"github.com/fyrsmithlabs/taskstack/internal/kinematics"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/primitive"
)

var (
	// ErrInvalidManifest indicates a manifest that cannot be decoded.
	ErrInvalidManifest = fmt.Errorf("%w: invalid stack manifest", faults.ErrValidation)

	// ErrDuplicateName indicates two entries of the same section share a name.
	ErrDuplicateName = fmt.Errorf("%w: duplicate name in stack manifest", faults.ErrValidation)
)

// Manifest is a decoded stack file.
type Manifest struct {
	// Replace removes every task and primitive before applying the manifest.
	Replace bool `toml:"replace"`

	Primitives []primitive.Spec   `toml:"primitive"`
	Tasks      []manager.TaskSpec `toml:"task"`
}

// Parse decodes a manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidManifest, strings.Join(keys, ", "))
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stack manifest: %w", err)
	}
	return Parse(data)
}

func (m *Manifest) validate() error {
	seen := make(map[string]bool)
	for _, p := range m.Primitives {
		if seen[p.Name] {
			return fmt.Errorf("%w: primitive %q", ErrDuplicateName, p.Name)
		}
		seen[p.Name] = true
	}
	seen = make(map[string]bool)
	for _, t := range m.Tasks {
		if seen[t.Name] {
			return fmt.Errorf("%w: task %q", ErrDuplicateName, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// Target is the subset of the task manager a manifest is applied to.
type Target interface {
	RemoveAllTasks(ctx context.Context) error
	RemoveAllPrimitives(ctx context.Context) error
	SetPrimitive(ctx context.Context, spec primitive.Spec) error
	SetTask(ctx context.Context, spec manager.TaskSpec, state *kinematics.RobotState) error
}

// Apply registers the manifest's primitives, then its tasks. Every entry is
// attempted; the failures are joined into the returned error. A nil state
// lets the target use its latest robot state.
func Apply(ctx context.Context, target Target, m *Manifest, state *kinematics.RobotState) error {
	if m.Replace {
		if err := target.RemoveAllTasks(ctx); err != nil {
			return err
		}
		if err := target.RemoveAllPrimitives(ctx); err != nil {
			return err
		}
	}

	var errs []error
	for _, p := range m.Primitives {
		if err := target.SetPrimitive(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	for _, t := range m.Tasks {
		if err := target.SetTask(ctx, t, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

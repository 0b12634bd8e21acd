// Package feature implements the Feature Model: CRUD, id allocation,
// and dependency-graph operations layered over the Store. It holds no
// state of its own — every call reads or writes through the Store.
package feature

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/pipelinekiln/conductor/internal/store"
	"github.com/pipelinekiln/conductor/pkg/models"
)

// Model is the Feature Model, a thin typed layer over a Store.
type Model struct {
	store store.Store
}

// New wraps a Store with Feature Model operations.
func New(s store.Store) *Model {
	return &Model{store: s}
}

// List returns features matching filter, ordered by id.
func (m *Model) List(ctx context.Context, filter models.ListFilter) ([]models.Feature, error) {
	return m.store.ListFeatures(ctx, filter)
}

// Get returns a single feature, or nil if it does not exist.
func (m *Model) Get(ctx context.Context, id string) (*models.Feature, error) {
	return m.store.GetFeature(ctx, id)
}

// Create allocates the next feature id and persists the record. Callers
// supply everything except id, status, passes, created_at, updated_at —
// those are set here to their initial values.
func (m *Model) Create(ctx context.Context, f models.Feature) (*models.Feature, error) {
	id, err := m.NextID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate feature id: %w", err)
	}
	f.ID = id
	f.Status = models.StatusPending
	f.Passes = false
	if f.DependsOn == nil {
		f.DependsOn = []string{}
	}
	if f.Requirements == nil {
		f.Requirements = []string{}
	}
	if f.ArchitectureCompliance == nil {
		f.ArchitectureCompliance = []string{}
	}
	if f.VerificationSteps == nil {
		f.VerificationSteps = []string{}
	}
	if err := m.store.CreateFeature(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Update patches an allow-listed set of fields on a feature. Fields not
// in models.MutableFields are rejected by the Store before any write
// happens.
func (m *Model) Update(ctx context.Context, id string, fields map[string]any) (*models.Feature, error) {
	return m.store.UpdateFeature(ctx, id, fields)
}

// Remove deletes a feature. Only reachable via explicit CLI action.
func (m *Model) Remove(ctx context.Context, id string) error {
	return m.store.DeleteFeature(ctx, id)
}

var featureIDPattern = regexp.MustCompile(`^FEAT-(\d+)$`)

// NextID scans for the largest existing FEAT-NNN id and returns the
// next one, zero-padded to at least three digits. Returns FEAT-001 if
// no features exist.
func (m *Model) NextID(ctx context.Context) (string, error) {
	all, err := m.store.ListFeatures(ctx, models.ListFilter{})
	if err != nil {
		return "", err
	}
	max := 0
	for _, f := range all {
		match := featureIDPattern.FindStringSubmatch(f.ID)
		if match == nil {
			continue
		}
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return formatID(max + 1), nil
}

func formatID(n int) string {
	return fmt.Sprintf("FEAT-%03d", n)
}

// CycleError is raised by ResolveOrder when the dependency graph
// contains a back-edge.
type CycleError struct {
	FeatureID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("Circular dependency: %s", e.FeatureID)
}

// ResolveOrder returns all features in a valid topological order of
// depends_on, via a depth-first search with a visiting-set for cycle
// detection. Raises *CycleError naming the offending id on a back-edge,
// including self-loops.
func (m *Model) ResolveOrder(ctx context.Context) ([]models.Feature, error) {
	all, err := m.store.ListFeatures(ctx, models.ListFilter{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Feature, len(all))
	for _, f := range all {
		byID[f.ID] = f
	}

	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(all))
	var order []models.Feature

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visited:
			return nil
		case visiting:
			return &CycleError{FeatureID: id}
		}
		state[id] = visiting
		f, ok := byID[id]
		if ok {
			deps := append([]string(nil), f.DependsOn...)
			sort.Strings(deps)
			for _, dep := range deps {
				if _, exists := byID[dep]; !exists {
					continue // missing reference: reported as blocked elsewhere, not a cycle
				}
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[id] = visited
		if ok {
			order = append(order, f)
		}
		return nil
	}

	ids := make([]string, 0, len(all))
	for _, f := range all {
		ids = append(ids, f.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// DepsAreMet reports whether every id in f.depends_on exists and has
// status=complete. status=complete is authoritative here — passes=true
// alone is not sufficient (see spec §9's Open Question resolution).
func (m *Model) DepsAreMet(ctx context.Context, f models.Feature) (bool, error) {
	for _, depID := range f.DependsOn {
		dep, err := m.store.GetFeature(ctx, depID)
		if err != nil {
			return false, err
		}
		if dep == nil || dep.Status != models.StatusComplete {
			return false, nil
		}
	}
	return true, nil
}

// BlockedReason returns a human-readable reason a feature cannot be
// scheduled yet, or "" if it is actionable. Used by status output to
// surface missing dependency references instead of blocking silently.
func (m *Model) BlockedReason(ctx context.Context, f models.Feature) (string, error) {
	for _, depID := range f.DependsOn {
		dep, err := m.store.GetFeature(ctx, depID)
		if err != nil {
			return "", err
		}
		if dep == nil {
			return fmt.Sprintf("depends on unknown feature %s", depID), nil
		}
		if dep.Status != models.StatusComplete {
			return fmt.Sprintf("waiting on %s (%s)", depID, dep.Status), nil
		}
	}
	return "", nil
}

// Package deployment holds the persistent model of a deployment: its
// release and stemcell inventory, its instance groups, and the variable
// set generations its instances are bound to.
package deployment

import (
	"time"

	"github.com/google/uuid"
)

// VariableSet is a generation marker for the variable values bound to
// instances at deploy time. Instances reference exactly one set at a
// time; a "new generation" deploy advances the deployment's current
// set before the plan is built.
type VariableSet struct {
	ID         string
	Deployment string
	Generation int
	CreatedAt  time.Time
}

type Deployment struct {
	Name string

	// Releases and Stemcells are the inventory as of the last plan
	// binding, in "name/version" form.
	Releases  []string
	Stemcells []string

	// InstanceGroups records the group names bound by the last plan.
	InstanceGroups []string

	// Ignored lists instance ids (group/index) the operator has marked
	// ignored. Ignored instances are excluded from updates and change
	// evaluation but stay visible in plan inventory.
	Ignored []string

	// VariableSetAssignments maps instance ids to the variable set
	// generation they are currently bound to.
	VariableSetAssignments map[string]string

	current      *VariableSet
	variableSets []*VariableSet
}

func New(name string) *Deployment {
	d := &Deployment{
		Name:                   name,
		VariableSetAssignments: map[string]string{},
	}
	d.AdvanceVariableSet()
	return d
}

// clone returns a deep copy sharing no mutable state with the
// receiver. The store hands out and keeps clones, so a record read
// before the deployment lock is held can never observe another run's
// in-flight mutations; only Save publishes them.
func (d *Deployment) clone() *Deployment {
	out := &Deployment{
		Name:                   d.Name,
		Releases:               append([]string(nil), d.Releases...),
		Stemcells:              append([]string(nil), d.Stemcells...),
		InstanceGroups:         append([]string(nil), d.InstanceGroups...),
		Ignored:                append([]string(nil), d.Ignored...),
		VariableSetAssignments: make(map[string]string, len(d.VariableSetAssignments)),
	}
	for id, set := range d.VariableSetAssignments {
		out.VariableSetAssignments[id] = set
	}
	for _, set := range d.variableSets {
		copied := *set
		out.variableSets = append(out.variableSets, &copied)
		if set == d.current {
			out.current = &copied
		}
	}
	return out
}

// IsIgnored reports whether the operator has marked the instance
// ignored.
func (d *Deployment) IsIgnored(instanceID string) bool {
	for _, id := range d.Ignored {
		if id == instanceID {
			return true
		}
	}
	return false
}

// CurrentVariableSet returns the generation new deploys bind instances
// to. It is never nil for a deployment created through New.
func (d *Deployment) CurrentVariableSet() *VariableSet {
	return d.current
}

// AdvanceVariableSet creates a new variable set generation and makes it
// current. Only the lock holder for this deployment may call it.
func (d *Deployment) AdvanceVariableSet() *VariableSet {
	set := &VariableSet{
		ID:         uuid.NewString(),
		Deployment: d.Name,
		Generation: len(d.variableSets) + 1,
		CreatedAt:  time.Now().UTC(),
	}
	d.variableSets = append(d.variableSets, set)
	d.current = set
	return set
}

// VariableSets returns every generation created so far, oldest first.
func (d *Deployment) VariableSets() []*VariableSet {
	return append([]*VariableSet(nil), d.variableSets...)
}

// Inventory is the release/stemcell snapshot used for audit event
// contexts. The slices are copies; mutating them does not affect the
// deployment.
func (d *Deployment) Inventory() ([]string, []string) {
	return append([]string(nil), d.Releases...), append([]string(nil), d.Stemcells...)
}

// Package plan builds the bound deployment plan the orchestrator works
// from: instance group plans with merged properties and resolved links,
// instance plans with their ignore flags and variable set references,
// and the inventory that feeds the audit context.
package plan

import (
	"fmt"
	"sync"
)

// Options are the orchestrator's per-run switches, passed through to
// the builder so it can bind accordingly.
type Options struct {
	DryRun bool
	New    bool
	Deploy bool
}

// InstancePlan is one instance target: a reference to an instance, the
// operator's ignore flag, and the variable set it is bound to.
type InstancePlan struct {
	ID            string
	Ignore        bool
	VariableSetID string
}

// InstanceGroupPlan is one group's slice of the plan.
type InstanceGroupPlan struct {
	Name      string
	Lifecycle string
	Jobs      []JobPlan
	Instances []*InstancePlan

	// Properties is the group's property bag: group properties merged
	// over the manifest-wide bag.
	Properties map[string]interface{}

	// ResolvedLinks maps consumed link names to provider data.
	// UnresolvedLinks lists consumptions no provider satisfied; they
	// surface as render-time errors, not plan-time ones.
	ResolvedLinks   map[string]interface{}
	UnresolvedLinks []string

	// SnapshotProperties and SnapshotLinks are filled in by the
	// rendering coordinator for errand groups: their property and link
	// data interpolated against the variable set bound at deploy time.
	SnapshotProperties map[string]interface{}
	SnapshotLinks      map[string]interface{}

	changed bool
}

type JobPlan struct {
	Name     string
	Release  string
	Provides map[string]interface{}
	Consumes []string
}

func (g *InstanceGroupPlan) Errand() bool {
	return g.Lifecycle == "errand"
}

// SetChanged records the post-rollout changed flag. Ignored instances
// never contribute to it.
func (g *InstanceGroupPlan) SetChanged(changed bool) {
	g.changed = changed
}

func (g *InstanceGroupPlan) Changed() bool {
	return g.changed
}

// NonIgnoredInstances returns the instance plans that participate in
// rendering, rollout and change detection.
func (g *InstanceGroupPlan) NonIgnoredInstances() []*InstancePlan {
	var out []*InstancePlan
	for _, ip := range g.Instances {
		if !ip.Ignore {
			out = append(out, ip)
		}
	}
	return out
}

// TemplateCache holds rendered template artifacts for the duration of a
// run. It must be released after use, on success and failure alike.
type TemplateCache struct {
	mtx      sync.Mutex
	entries  map[string][]byte
	released bool
}

func newTemplateCache() *TemplateCache {
	return &TemplateCache{entries: map[string][]byte{}}
}

func (c *TemplateCache) Put(key string, artifact []byte) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.released {
		return
	}
	c.entries[key] = artifact
}

func (c *TemplateCache) Get(key string) ([]byte, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	artifact, ok := c.entries[key]
	return artifact, ok
}

// Release drops the cache contents. It is safe to call more than once.
func (c *TemplateCache) Release() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.entries = nil
	c.released = true
}

func (c *TemplateCache) Released() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.released
}

// instanceID is the canonical "group/index" instance reference.
func instanceID(group string, index int) string {
	return fmt.Sprintf("%s/%d", group, index)
}

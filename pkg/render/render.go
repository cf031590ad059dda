// Package render coordinates template rendering across instance
// groups. Rendering one group never prevents attempting the next:
// per-group failures are collected and reported as one aggregated
// error after every group has been tried.
package render

import (
	"context"
	"strings"
	"sync"

	"github.com/go-kit/kit/log"

	"github.com/flotilla-deploy/flotilla/pkg/plan"
)

// JobRenderer renders one group's job templates into the run's
// template cache. Rendering mechanics live behind this boundary.
type JobRenderer interface {
	RenderGroup(ctx context.Context, cache *plan.TemplateCache, g *plan.InstanceGroupPlan) error
}

// VariableResolver looks up a generated variable value. Satisfied by
// the variables store.
type VariableResolver interface {
	Get(deployment, setID, name string) (interface{}, bool)
}

type Coordinator struct {
	renderer JobRenderer
	vars     VariableResolver
	logger   log.Logger
}

func NewCoordinator(renderer JobRenderer, vars VariableResolver, logger log.Logger) *Coordinator {
	return &Coordinator{renderer: renderer, vars: vars, logger: logger}
}

// RenderAndSnapshot renders every group scheduled to start on this
// deploy, then interpolates and snapshots errand group properties.
// Both passes collect failures instead of aborting; if anything
// accumulated, the result is a single *AggregateError naming every
// failing group. Groups render concurrently but the aggregate is
// assembled in plan order, so the message is deterministic.
func (c *Coordinator) RenderAndSnapshot(ctx context.Context, p *plan.Plan) error {
	groups := p.GroupsToStart()
	rendered := make([][]error, len(groups))

	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g *plan.InstanceGroupPlan) {
			defer wg.Done()
			if err := c.renderer.RenderGroup(ctx, p.TemplateCache(), g); err != nil {
				rendered[i] = splitGroupErrors(err)
			}
		}(i, g)
	}
	wg.Wait()

	var agg AggregateError
	for i, g := range groups {
		if len(rendered[i]) > 0 {
			agg.Groups = append(agg.Groups, GroupErrors{Name: g.Name, Errs: rendered[i]})
		}
	}

	// Errand groups are deferred from rollout but their variable and
	// link data must be snapshotted now, since they may run long after
	// other groups have advanced their variable sets.
	for _, g := range p.ErrandGroups() {
		if errs := c.snapshotErrand(p, g); len(errs) > 0 {
			agg.Groups = append(agg.Groups, GroupErrors{Name: g.Name, Errs: errs})
		}
	}

	if len(agg.Groups) > 0 {
		return &agg
	}
	return nil
}

// AggregateError is the combined failure across both passes. Its
// message is a multi-section indented report naming every failing
// group and its individual causes.
type AggregateError struct {
	Groups []GroupErrors
}

type GroupErrors struct {
	Name string
	Errs []error
}

func (e *AggregateError) Error() string {
	var b strings.Builder
	b.WriteString("Unable to render instance groups for deployment. Errors are:")
	for _, g := range e.Groups {
		b.WriteString("\n  - Unable to render jobs for instance group '")
		b.WriteString(g.Name)
		b.WriteString("'. Errors are:")
		for _, err := range g.Errs {
			b.WriteString("\n    - ")
			b.WriteString(err.Error())
		}
	}
	return b.String()
}

// splitGroupErrors unpacks a renderer failure into individual causes,
// so a renderer may report several problems at once.
func splitGroupErrors(err error) []error {
	type multi interface {
		Errors() []error
	}
	if m, ok := err.(multi); ok {
		return m.Errors()
	}
	return []error{err}
}

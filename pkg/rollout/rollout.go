// Package rollout holds the boundary to the subsystems that actually
// change running infrastructure: package compilation, the rolling
// update executor, and post-deploy hooks. The orchestrator drives these
// through interfaces; the multi-group updater and change detection live
// here.
package rollout

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/flotilla-deploy/flotilla/pkg/plan"
)

// PackageCompiler compiles the packages a plan requires. Failures are
// fatal and propagate without local recovery.
type PackageCompiler interface {
	Compile(ctx context.Context, p *plan.Plan) error
}

// InstanceGroupUpdater converges one instance group and reports whether
// anything actually changed.
type InstanceGroupUpdater interface {
	Update(ctx context.Context, g *plan.InstanceGroupPlan) (changed bool, err error)
}

// JobUpdaterFactory builds the updater for each group. The scheduling
// policy inside an updater (canaries, max in flight) is its own
// business.
type JobUpdaterFactory interface {
	NewUpdater(g *plan.InstanceGroupPlan) InstanceGroupUpdater
}

// Executor performs a rollout. Implementations are constructed from the
// plan plus a multi-group updater.
type Executor interface {
	Perform(ctx context.Context) error
}

// ExecutorFactory builds the executor for one run.
type ExecutorFactory interface {
	NewExecutor(p *plan.Plan, updater *MultiGroupUpdater) Executor
}

// PostDeployHookRunner runs the deployment's post-deploy hooks. It is
// only invoked when at least one instance group changed.
type PostDeployHookRunner interface {
	RunHooks(ctx context.Context, p *plan.Plan) error
}

// MultiGroupUpdater walks the plan's startable groups in order,
// delegating each to its group updater and recording the changed flag
// on the group plan. Errand groups and groups with no non-ignored
// instances are skipped.
type MultiGroupUpdater struct {
	factory JobUpdaterFactory
	logger  log.Logger
}

func NewMultiGroupUpdater(factory JobUpdaterFactory, logger log.Logger) *MultiGroupUpdater {
	return &MultiGroupUpdater{factory: factory, logger: logger}
}

func (u *MultiGroupUpdater) Update(ctx context.Context, p *plan.Plan) error {
	for _, g := range p.GroupsToStart() {
		if len(g.NonIgnoredInstances()) == 0 {
			u.logger.Log("instance_group", g.Name, "skipped", "no instances to update")
			continue
		}
		updater := u.factory.NewUpdater(g)
		changed, err := updater.Update(ctx, g)
		if err != nil {
			return errors.Wrapf(err, "updating instance group %q", g.Name)
		}
		g.SetChanged(changed)
		u.logger.Log("instance_group", g.Name, "changed", changed)
	}
	return nil
}

// AnyGroupChanged reports whether the rollout changed anything; it
// drives the optional post-deploy hooks.
func AnyGroupChanged(p *plan.Plan) bool {
	for _, g := range p.Groups {
		if g.Changed() {
			return true
		}
	}
	return false
}

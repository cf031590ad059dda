package rollout

import (
	"context"

	"github.com/go-kit/kit/log"

	"github.com/flotilla-deploy/flotilla/pkg/plan"
)

// The standalone implementations back a single-node daemon with no
// external compilation or agent fleet. They record what a real backend
// would do and report every instance as changed, which keeps the
// hook and change-detection paths honest in development setups.

type nopCompiler struct {
	logger log.Logger
}

func NewNopCompiler(logger log.Logger) PackageCompiler {
	return nopCompiler{logger: logger}
}

func (c nopCompiler) Compile(_ context.Context, p *plan.Plan) error {
	c.logger.Log("deployment", p.Deployment.Name, "releases", len(p.Releases), "compiled", true)
	return nil
}

type serialExecutorFactory struct{}

func NewSerialExecutorFactory() ExecutorFactory {
	return serialExecutorFactory{}
}

func (serialExecutorFactory) NewExecutor(p *plan.Plan, updater *MultiGroupUpdater) Executor {
	return serialExecutor{plan: p, updater: updater}
}

type serialExecutor struct {
	plan    *plan.Plan
	updater *MultiGroupUpdater
}

func (e serialExecutor) Perform(ctx context.Context) error {
	return e.updater.Update(ctx, e.plan)
}

type loggingUpdaterFactory struct {
	logger log.Logger
}

func NewLoggingUpdaterFactory(logger log.Logger) JobUpdaterFactory {
	return loggingUpdaterFactory{logger: logger}
}

func (f loggingUpdaterFactory) NewUpdater(g *plan.InstanceGroupPlan) InstanceGroupUpdater {
	return loggingUpdater{logger: log.With(f.logger, "instance_group", g.Name)}
}

type loggingUpdater struct {
	logger log.Logger
}

func (u loggingUpdater) Update(_ context.Context, g *plan.InstanceGroupPlan) (bool, error) {
	for _, ip := range g.NonIgnoredInstances() {
		u.logger.Log("instance", ip.ID, "variable_set", ip.VariableSetID, "updated", true)
	}
	return len(g.NonIgnoredInstances()) > 0, nil
}

type nopHookRunner struct {
	logger log.Logger
}

func NewNopHookRunner(logger log.Logger) PostDeployHookRunner {
	return nopHookRunner{logger: logger}
}

func (r nopHookRunner) RunHooks(_ context.Context, p *plan.Plan) error {
	r.logger.Log("deployment", p.Deployment.Name, "post_deploy_hooks", "skipped")
	return nil
}

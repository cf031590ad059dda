// Package deployer drives one deployment update from manifest text to
// a finished (or failed) rollout. It owns the ordering guarantees: lock
// coverage, audit event pairing, notification best effort, and the
// dry-run cutoff.
package deployer

import (
	"context"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/flotilla-deploy/flotilla/pkg/configsvc"
	"github.com/flotilla-deploy/flotilla/pkg/deployment"
	"github.com/flotilla-deploy/flotilla/pkg/event"
	"github.com/flotilla-deploy/flotilla/pkg/lock"
	"github.com/flotilla-deploy/flotilla/pkg/manifest"
	"github.com/flotilla-deploy/flotilla/pkg/notify"
	"github.com/flotilla-deploy/flotilla/pkg/plan"
	"github.com/flotilla-deploy/flotilla/pkg/render"
	"github.com/flotilla-deploy/flotilla/pkg/rollout"
	"github.com/flotilla-deploy/flotilla/pkg/variables"
)

// Request is one deploy invocation. CloudConfigRef and RuntimeConfigRef
// are stored-config ids; empty means none requested.
type Request struct {
	ManifestText     []byte
	CloudConfigRef   string
	RuntimeConfigRef string
	Options          plan.Options
}

// Config collects the deployer's collaborators. Everything is required
// except what New fills with a default.
type Config struct {
	Deployments deployment.Store
	Configs     configsvc.Store
	Builder     *plan.Builder
	Variables   *variables.Generator
	Renderer    *render.Coordinator
	Locks       *lock.Service
	Events      event.Writer
	Actor       string
	Notifier    notify.Factory
	Compiler    rollout.PackageCompiler
	Executors   rollout.ExecutorFactory
	Updaters    rollout.JobUpdaterFactory
	Hooks       rollout.PostDeployHookRunner
	Logger      log.Logger
}

type Deployer struct {
	cfg Config
}

func New(cfg Config) *Deployer {
	return &Deployer{cfg: cfg}
}

// runState carries what the failure path needs from a partially
// completed run. The audit context stays nil until the post-binding
// inventory snapshot exists.
type runState struct {
	context  *event.Context
	notifier notify.Notifier
}

// Deploy runs the update sequence once, no internal retries, and
// returns the deployment reference path. Dry runs stop before
// compilation; everything after the render cutoff is skipped, including
// notifications, but the audit event pair is still recorded.
//
// Every run records an opening audit event and exactly one terminal
// event chained to it. On failure the terminal event carries the
// original error and whatever inventory context had been computed; an
// error notification is attempted first, and its own failure is logged
// and discarded so it can never replace the cause.
func (d *Deployer) Deploy(ctx context.Context, req Request) (string, error) {
	begin := time.Now()

	m, err := manifest.Parse(req.ManifestText)
	if err != nil {
		ObserveDeploy(begin, false, req.Options.DryRun)
		return "", errors.Wrap(err, "parsing manifest")
	}

	logger := log.With(d.cfg.Logger, "deployment", m.Name, "dry_run", req.Options.DryRun)

	action := event.ActionUpdate
	if req.Options.New {
		action = event.ActionCreate
	}

	// Each run is one task; both audit events of the pair carry its id.
	recorder := event.NewRecorder(d.cfg.Events, d.cfg.Actor, uuid.NewString())

	startID, err := recorder.Record(0, action, m.Name, nil, nil)
	if err != nil {
		ObserveDeploy(begin, false, req.Options.DryRun)
		return "", err
	}

	st := &runState{notifier: d.cfg.Notifier.ForDeployment(m.Name)}
	if !req.Options.DryRun {
		if nerr := st.notifier.SendStart(); nerr != nil {
			logger.Log("msg", "sending start notification", "err", nerr)
		}
	}

	path, err := d.run(ctx, logger, m, req, st)
	if err != nil {
		if !req.Options.DryRun {
			if nerr := st.notifier.SendError(err); nerr != nil {
				logger.Log("msg", "sending error notification", "err", nerr)
			}
		}
		if _, rerr := recorder.Record(startID, action, m.Name, st.context, err); rerr != nil {
			logger.Log("msg", "recording terminal audit event", "err", rerr)
		}
		ObserveDeploy(begin, false, req.Options.DryRun)
		return "", err
	}

	if _, rerr := recorder.Record(startID, action, m.Name, st.context, nil); rerr != nil {
		ObserveDeploy(begin, false, req.Options.DryRun)
		return "", rerr
	}
	ObserveDeploy(begin, true, req.Options.DryRun)
	return path, nil
}

func (d *Deployer) run(ctx context.Context, logger log.Logger, m *manifest.Manifest, req Request, st *runState) (string, error) {
	cloud, runtime, err := d.resolveConfigs(logger, m, req)
	if err != nil {
		return "", err
	}

	before, err := d.inventoryOf(m.Name)
	if err != nil {
		return "", err
	}

	timer := NewStageTimer("acquire_lock")
	lease, err := d.cfg.Locks.Acquire(ctx, m.Name)
	timer.ObserveDuration()
	if err != nil {
		return "", errors.Wrap(err, "acquiring deployment lock")
	}
	defer lease.Release()

	// A new variable generation only makes sense for a deployment that
	// already exists; a first deploy starts on generation one anyway.
	if req.Options.Deploy {
		dep, found, err := d.cfg.Deployments.Find(m.Name)
		if err != nil {
			return "", errors.Wrap(err, "loading deployment record")
		}
		if found {
			vs := dep.AdvanceVariableSet()
			if err := d.cfg.Deployments.Save(dep); err != nil {
				return "", errors.Wrap(err, "saving deployment record")
			}
			logger.Log("msg", "advanced variable set", "generation", vs.Generation)
		}
	}

	timer = NewStageTimer("build_plan")
	p, err := d.cfg.Builder.Build(m, cloud, runtime, req.Options)
	timer.ObserveDuration()
	if err != nil {
		return "", err
	}
	defer p.TemplateCache().Release()

	if err := p.BindModels(); err != nil {
		return "", err
	}
	current := p.Deployment.CurrentVariableSet()
	if err := d.cfg.Variables.Generate(p.Variables, m.Name, current.ID); err != nil {
		return "", errors.Wrap(err, "generating variable values")
	}

	if ignored := p.IgnoredInstances(); len(ignored) > 0 {
		logger.Log("warning", "instances with the ignore flag are excluded from this deploy",
			"instances", strings.Join(ignored, ","))
	}

	st.context = &event.Context{
		Before: before,
		After:  event.Inventory{Releases: p.Releases, Stemcells: p.Stemcells},
	}

	p.BindVariableSets(req.Options.Deploy)
	if err := d.cfg.Deployments.Save(p.Deployment); err != nil {
		return "", errors.Wrap(err, "saving deployment record")
	}

	timer = NewStageTimer("render")
	err = d.cfg.Renderer.RenderAndSnapshot(ctx, p)
	timer.ObserveDuration()
	if err != nil {
		return "", err
	}

	path := "/deployments/" + m.Name
	if req.Options.DryRun {
		return path, nil
	}

	timer = NewStageTimer("compile_packages")
	err = d.cfg.Compiler.Compile(ctx, p)
	timer.ObserveDuration()
	if err != nil {
		return "", errors.Wrap(err, "compiling packages")
	}

	timer = NewStageTimer("rollout")
	updater := rollout.NewMultiGroupUpdater(d.cfg.Updaters, logger)
	err = d.cfg.Executors.NewExecutor(p, updater).Perform(ctx)
	timer.ObserveDuration()
	if err != nil {
		return "", err
	}

	if rollout.AnyGroupChanged(p) {
		timer = NewStageTimer("post_deploy_hooks")
		err = d.cfg.Hooks.RunHooks(ctx, p)
		timer.ObserveDuration()
		if err != nil {
			return "", errors.Wrap(err, "running post-deploy hooks")
		}
	}

	if nerr := st.notifier.SendEnd(); nerr != nil {
		logger.Log("msg", "sending end notification", "err", nerr)
	}
	return path, nil
}

// resolveConfigs loads the referenced cloud and runtime configs. A
// manifest that embeds its own networks keeps the legacy behavior: the
// stored cloud config is ignored outright.
func (d *Deployer) resolveConfigs(logger log.Logger, m *manifest.Manifest, req Request) (*configsvc.CloudConfig, *configsvc.RuntimeConfig, error) {
	var cloud *configsvc.CloudConfig
	if m.HasEmbeddedTopology() {
		logger.Log("warning", "manifest-embedded networks are deprecated; ignoring cloud config")
	} else if req.CloudConfigRef != "" {
		cc, found, err := d.cfg.Configs.CloudConfig(req.CloudConfigRef)
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading cloud config")
		}
		if !found {
			logger.Log("debug", "cloud config not found; deploying without one", "cloud_config", req.CloudConfigRef)
		} else {
			cloud = cc
		}
	}

	var runtime *configsvc.RuntimeConfig
	if req.RuntimeConfigRef != "" {
		rc, found, err := d.cfg.Configs.RuntimeConfig(req.RuntimeConfigRef)
		if err != nil {
			return nil, nil, errors.Wrap(err, "loading runtime config")
		}
		if !found {
			logger.Log("debug", "runtime config not found; deploying without one", "runtime_config", req.RuntimeConfigRef)
		} else {
			runtime = rc
		}
	}
	return cloud, runtime, nil
}

func (d *Deployer) inventoryOf(name string) (event.Inventory, error) {
	dep, found, err := d.cfg.Deployments.Find(name)
	if err != nil {
		return event.Inventory{}, errors.Wrap(err, "loading deployment record")
	}
	if !found {
		return event.Inventory{}, nil
	}
	releases, stemcells := dep.Inventory()
	return event.Inventory{Releases: releases, Stemcells: stemcells}, nil
}

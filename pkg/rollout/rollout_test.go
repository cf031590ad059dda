package rollout

import (
	"context"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotilla-deploy/flotilla/pkg/deployment"
	"github.com/flotilla-deploy/flotilla/pkg/manifest"
	"github.com/flotilla-deploy/flotilla/pkg/plan"
)

const rolloutManifest = `---
name: shop
releases:
  - name: r
    version: 1.0.0
instance_groups:
  - name: web
    instances: 2
    jobs:
      - name: webserver
        release: r
  - name: worker
    instances: 1
    jobs:
      - name: worker
        release: r
  - name: smoke-tests
    instances: 1
    lifecycle: errand
    jobs:
      - name: smoke
        release: r
`

func testPlan(t *testing.T, ignored ...string) *plan.Plan {
	t.Helper()
	m, err := manifest.Parse([]byte(rolloutManifest))
	require.NoError(t, err)
	store := deployment.NewInmemStore()
	if len(ignored) > 0 {
		d := deployment.New("shop")
		d.Ignored = ignored
		require.NoError(t, store.Save(d))
	}
	b := &plan.Builder{Deployments: store}
	p, err := b.Build(m, nil, nil, plan.Options{Deploy: true})
	require.NoError(t, err)
	p.BindVariableSets(true)
	return p
}

// fakeUpdaterFactory reports a canned result per group and remembers
// the order groups were updated in.
type fakeUpdaterFactory struct {
	changed map[string]bool
	fail    map[string]error
	order   []string
}

func (f *fakeUpdaterFactory) NewUpdater(g *plan.InstanceGroupPlan) InstanceGroupUpdater {
	return fakeUpdater{factory: f}
}

type fakeUpdater struct {
	factory *fakeUpdaterFactory
}

func (u fakeUpdater) Update(_ context.Context, g *plan.InstanceGroupPlan) (bool, error) {
	u.factory.order = append(u.factory.order, g.Name)
	if err := u.factory.fail[g.Name]; err != nil {
		return false, err
	}
	return u.factory.changed[g.Name], nil
}

func TestMultiGroupUpdaterSkipsErrands(t *testing.T) {
	p := testPlan(t)
	f := &fakeUpdaterFactory{changed: map[string]bool{"web": true, "worker": false}}
	u := NewMultiGroupUpdater(f, log.NewNopLogger())

	require.NoError(t, u.Update(context.Background(), p))
	assert.Equal(t, []string{"web", "worker"}, f.order)
}

func TestMultiGroupUpdaterRecordsChanged(t *testing.T) {
	p := testPlan(t)
	f := &fakeUpdaterFactory{changed: map[string]bool{"web": true, "worker": false}}
	u := NewMultiGroupUpdater(f, log.NewNopLogger())

	require.NoError(t, u.Update(context.Background(), p))
	assert.True(t, AnyGroupChanged(p))
	for _, g := range p.Groups {
		if g.Name == "web" {
			assert.True(t, g.Changed())
		} else {
			assert.False(t, g.Changed())
		}
	}
}

func TestMultiGroupUpdaterStopsOnError(t *testing.T) {
	p := testPlan(t)
	f := &fakeUpdaterFactory{fail: map[string]error{"web": errors.New("agent unresponsive")}}
	u := NewMultiGroupUpdater(f, log.NewNopLogger())

	err := u.Update(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `updating instance group "web"`)
	assert.Equal(t, []string{"web"}, f.order)
	assert.False(t, AnyGroupChanged(p))
}

func TestMultiGroupUpdaterSkipsFullyIgnoredGroups(t *testing.T) {
	p := testPlan(t, "worker/0")
	f := &fakeUpdaterFactory{changed: map[string]bool{"web": true}}
	u := NewMultiGroupUpdater(f, log.NewNopLogger())

	require.NoError(t, u.Update(context.Background(), p))
	assert.Equal(t, []string{"web"}, f.order)
}

func TestLoggingUpdaterReportsChangeOnlyWithInstances(t *testing.T) {
	p := testPlan(t, "worker/0")
	factory := NewLoggingUpdaterFactory(log.NewNopLogger())
	for _, g := range p.GroupsToStart() {
		changed, err := factory.NewUpdater(g).Update(context.Background(), g)
		require.NoError(t, err)
		assert.Equal(t, len(g.NonIgnoredInstances()) > 0, changed, g.Name)
	}
}

func TestSerialExecutorDrivesUpdater(t *testing.T) {
	p := testPlan(t)
	f := &fakeUpdaterFactory{changed: map[string]bool{"web": true}}
	exec := NewSerialExecutorFactory().NewExecutor(p, NewMultiGroupUpdater(f, log.NewNopLogger()))

	require.NoError(t, exec.Perform(context.Background()))
	assert.True(t, AnyGroupChanged(p))
}

func TestNopCompilerAndHooks(t *testing.T) {
	p := testPlan(t)
	require.NoError(t, NewNopCompiler(log.NewNopLogger()).Compile(context.Background(), p))
	require.NoError(t, NewNopHookRunner(log.NewNopLogger()).RunHooks(context.Background(), p))
}

package render

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flotilla-deploy/flotilla/pkg/deployment"
	"github.com/flotilla-deploy/flotilla/pkg/manifest"
	"github.com/flotilla-deploy/flotilla/pkg/plan"
	"github.com/flotilla-deploy/flotilla/pkg/variables"
)

// stubRenderer fails the groups it is told to, and remembers which
// groups were attempted.
type stubRenderer struct {
	mtx       sync.Mutex
	failWith  map[string]error
	attempted []string
}

func (r *stubRenderer) RenderGroup(_ context.Context, _ *plan.TemplateCache, g *plan.InstanceGroupPlan) error {
	r.mtx.Lock()
	r.attempted = append(r.attempted, g.Name)
	r.mtx.Unlock()
	return r.failWith[g.Name]
}

func testPlan(t *testing.T, text string) *plan.Plan {
	t.Helper()
	m, err := manifest.Parse([]byte(text))
	require.NoError(t, err)
	b := &plan.Builder{Deployments: deployment.NewInmemStore()}
	p, err := b.Build(m, nil, nil, plan.Options{Deploy: true})
	require.NoError(t, err)
	p.BindVariableSets(true)
	return p
}

const renderManifest = `---
name: shop
releases:
  - name: r
    version: 1.0.0
instance_groups:
  - name: web
    instances: 1
    jobs:
      - name: webserver
        release: r
        provides:
          db: {host: db.internal}
  - name: worker
    instances: 1
    jobs:
      - name: worker
        release: r
  - name: errand-x
    instances: 1
    lifecycle: errand
    jobs:
      - name: smoke
        release: r
        consumes: [missing-link]
`

func TestAllGroupsAttemptedAndAggregated(t *testing.T) {
	p := testPlan(t, renderManifest)
	r := &stubRenderer{failWith: map[string]error{
		"worker": errors.New("missing property db.host"),
	}}
	c := NewCoordinator(r, variables.NewInmemStore(), log.NewNopLogger())

	err := c.RenderAndSnapshot(context.Background(), p)
	require.Error(t, err)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Groups, 2)
	assert.Equal(t, "worker", agg.Groups[0].Name)
	assert.Equal(t, "errand-x", agg.Groups[1].Name)

	// web was attempted and is not mentioned as failing.
	assert.ElementsMatch(t, []string{"web", "worker"}, r.attempted)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Unable to render instance groups for deployment. Errors are:"))
	assert.Contains(t, msg, "  - Unable to render jobs for instance group 'worker'. Errors are:\n    - missing property db.host")
	assert.Contains(t, msg, "  - Unable to render jobs for instance group 'errand-x'. Errors are:\n    - unresolved link: missing-link")
	assert.Equal(t, 2, strings.Count(msg, "Unable to render jobs for instance group"))
	assert.NotContains(t, msg, "'web'")
}

func TestSuccessWhenNothingFails(t *testing.T) {
	p := testPlan(t, `
name: ok
releases: [{name: r, version: 1.0.0}]
instance_groups:
  - name: web
    instances: 1
    jobs: [{name: webserver, release: r}]
`)
	r := &stubRenderer{}
	c := NewCoordinator(r, variables.NewInmemStore(), log.NewNopLogger())
	assert.NoError(t, c.RenderAndSnapshot(context.Background(), p))
}

func TestErrandSnapshotInterpolation(t *testing.T) {
	m, err := manifest.Parse([]byte(`
name: shop
releases: [{name: r, version: 1.0.0}]
instance_groups:
  - name: seed-db
    instances: 1
    lifecycle: errand
    jobs: [{name: seeder, release: r}]
    properties:
      admin_password: ((db_password))
      banner: "user=admin password=((db_password))"
`))
	require.NoError(t, err)

	store := deployment.NewInmemStore()
	b := &plan.Builder{Deployments: store}
	p, err := b.Build(m, nil, nil, plan.Options{Deploy: true})
	require.NoError(t, err)
	p.BindVariableSets(true)

	vars := variables.NewInmemStore()
	setID := p.Deployment.CurrentVariableSet().ID
	require.NoError(t, vars.Put("shop", setID, "db_password", "s3cret"))

	c := NewCoordinator(&stubRenderer{}, vars, log.NewNopLogger())
	require.NoError(t, c.RenderAndSnapshot(context.Background(), p))

	errand := p.ErrandGroups()[0]
	require.NotNil(t, errand.SnapshotProperties)
	assert.Equal(t, "s3cret", errand.SnapshotProperties["admin_password"])
	assert.Equal(t, "user=admin password=s3cret", errand.SnapshotProperties["banner"])
}

func TestErrandUnresolvedVariable(t *testing.T) {
	m, err := manifest.Parse([]byte(`
name: shop
releases: [{name: r, version: 1.0.0}]
instance_groups:
  - name: seed-db
    instances: 1
    lifecycle: errand
    jobs: [{name: seeder, release: r}]
    properties:
      admin_password: ((never_generated))
`))
	require.NoError(t, err)
	b := &plan.Builder{Deployments: deployment.NewInmemStore()}
	p, err := b.Build(m, nil, nil, plan.Options{Deploy: true})
	require.NoError(t, err)
	p.BindVariableSets(true)

	c := NewCoordinator(&stubRenderer{}, variables.NewInmemStore(), log.NewNopLogger())
	err = c.RenderAndSnapshot(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance group 'seed-db'")
	assert.Contains(t, err.Error(), "unresolved variable 'never_generated'")
}

func TestPropertyRenderer(t *testing.T) {
	p := testPlan(t, `
name: shop
releases: [{name: r, version: 1.0.0}]
properties:
  db:
    host: db.internal
instance_groups:
  - name: web
    instances: 1
    jobs: [{name: webserver, release: r}]
`)
	web := p.Groups[0]
	r := &PropertyRenderer{Required: map[string][]string{"webserver": {"db.host"}}}
	require.NoError(t, r.RenderGroup(context.Background(), p.TemplateCache(), web))

	artifact, ok := p.TemplateCache().Get("web/webserver")
	require.True(t, ok)
	assert.Contains(t, string(artifact), "db.internal")
}

func TestPropertyRendererMissingProperty(t *testing.T) {
	p := testPlan(t, `
name: shop
releases: [{name: r, version: 1.0.0}]
instance_groups:
  - name: worker
    instances: 1
    jobs: [{name: worker, release: r}]
`)
	r := &PropertyRenderer{Required: map[string][]string{"worker": {"db.host"}}}
	err := r.RenderGroup(context.Background(), p.TemplateCache(), p.Groups[0])
	require.Error(t, err)
	assert.Equal(t, "missing property db.host", err.Error())
}

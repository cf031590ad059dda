package plan

import (
	"encoding/json"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"

	"github.com/flotilla-deploy/flotilla/pkg/configsvc"
	"github.com/flotilla-deploy/flotilla/pkg/deployment"
	"github.com/flotilla-deploy/flotilla/pkg/manifest"
)

// Plan is the bound plan for one run: everything the orchestrator needs
// between lock acquisition and rollout.
type Plan struct {
	Deployment *deployment.Deployment
	Manifest   *manifest.Manifest
	Groups     []*InstanceGroupPlan
	Variables  []manifest.Variable

	// Releases and Stemcells are the inventory this plan binds, in
	// "name/version" form, including runtime config additions.
	Releases  []string
	Stemcells []string

	templateCache *TemplateCache
	bound         bool
}

// Builder turns a manifest plus resolved configs into a bound Plan.
type Builder struct {
	Deployments deployment.Store
}

// Build assembles the plan: merges runtime config properties into the
// manifest, merges property bags per group, resolves inter-group links,
// and attaches instance plans carrying ignore flags and current
// variable set assignments.
func (b *Builder) Build(m *manifest.Manifest, cloud *configsvc.CloudConfig, runtime *configsvc.RuntimeConfig, opts Options) (*Plan, error) {
	if runtime != nil && runtime.AppliesTo(m.Name) {
		merged, err := applyRuntimeConfig(m, runtime)
		if err != nil {
			return nil, err
		}
		m = merged
	}

	dep, _, err := b.Deployments.FindOrCreate(m.Name)
	if err != nil {
		return nil, errors.Wrap(err, "loading deployment record")
	}

	p := &Plan{
		Deployment:    dep,
		Manifest:      m,
		Variables:     m.Variables,
		templateCache: newTemplateCache(),
	}

	for _, r := range m.Releases {
		p.Releases = append(p.Releases, r.String())
	}
	if runtime != nil && runtime.AppliesTo(m.Name) {
		for _, r := range runtime.Releases {
			p.Releases = append(p.Releases, r.Name+"/"+r.Version)
		}
	}
	for _, s := range m.Stemcells {
		p.Stemcells = append(p.Stemcells, s.String())
	}

	providers, err := collectLinkProviders(m)
	if err != nil {
		return nil, err
	}

	for _, g := range m.InstanceGroups {
		gp, err := buildGroupPlan(m, g, dep, providers)
		if err != nil {
			return nil, err
		}
		p.Groups = append(p.Groups, gp)
	}

	return p, nil
}

func buildGroupPlan(m *manifest.Manifest, g manifest.InstanceGroup, dep *deployment.Deployment, providers map[string]interface{}) (*InstanceGroupPlan, error) {
	props := deepCopyBag(m.Properties)
	if props == nil {
		props = map[string]interface{}{}
	}
	if err := mergo.Merge(&props, deepCopyBag(g.Properties), mergo.WithOverride); err != nil {
		return nil, errors.Wrapf(err, "merging properties for instance group %q", g.Name)
	}

	gp := &InstanceGroupPlan{
		Name:          g.Name,
		Lifecycle:     g.Lifecycle,
		Properties:    props,
		ResolvedLinks: map[string]interface{}{},
	}

	for _, j := range g.Jobs {
		gp.Jobs = append(gp.Jobs, JobPlan{
			Name:     j.Name,
			Release:  j.Release,
			Provides: j.Provides,
			Consumes: j.Consumes,
		})
		for _, link := range j.Consumes {
			if data, ok := providers[link]; ok {
				gp.ResolvedLinks[link] = data
			} else {
				gp.UnresolvedLinks = append(gp.UnresolvedLinks, link)
			}
		}
	}

	for i := 0; i < g.Instances; i++ {
		id := instanceID(g.Name, i)
		gp.Instances = append(gp.Instances, &InstancePlan{
			ID:            id,
			Ignore:        dep.IsIgnored(id),
			VariableSetID: dep.VariableSetAssignments[id],
		})
	}

	return gp, nil
}

// collectLinkProviders indexes every link provided by any job in the
// manifest. A link provided twice is ambiguous and rejected up front.
func collectLinkProviders(m *manifest.Manifest) (map[string]interface{}, error) {
	providers := map[string]interface{}{}
	for _, g := range m.InstanceGroups {
		for _, j := range g.Jobs {
			for name, data := range j.Provides {
				if _, exists := providers[name]; exists {
					return nil, errors.Errorf("link %q is provided more than once", name)
				}
				providers[name] = data
			}
		}
	}
	return providers, nil
}

func applyRuntimeConfig(m *manifest.Manifest, runtime *configsvc.RuntimeConfig) (*manifest.Manifest, error) {
	doc, err := m.AsJSON()
	if err != nil {
		return nil, errors.Wrap(err, "serializing manifest")
	}
	merged, err := runtime.MergeProperties(doc)
	if err != nil {
		return nil, err
	}
	var out manifest.Manifest
	if err := json.Unmarshal(merged, &out); err != nil {
		return nil, errors.Wrap(err, "decoding merged manifest")
	}
	return &out, nil
}

// BindModels writes the plan's inventory onto the deployment record, so
// the post-binding audit snapshot reflects this run.
func (p *Plan) BindModels() error {
	p.Deployment.Releases = append([]string(nil), p.Releases...)
	p.Deployment.Stemcells = append([]string(nil), p.Stemcells...)
	p.Deployment.InstanceGroups = nil
	for _, g := range p.Groups {
		p.Deployment.InstanceGroups = append(p.Deployment.InstanceGroups, g.Name)
	}
	p.bound = true
	return nil
}

// TemplateCache returns the render artifact cache for this run. The
// caller must release it after use regardless of outcome.
func (p *Plan) TemplateCache() *TemplateCache {
	return p.templateCache
}

// GroupsToStart returns the groups whose rollout is not deferred.
// Errand groups run on demand and are deferred from rollout.
func (p *Plan) GroupsToStart() []*InstanceGroupPlan {
	var out []*InstanceGroupPlan
	for _, g := range p.Groups {
		if !g.Errand() {
			out = append(out, g)
		}
	}
	return out
}

func (p *Plan) ErrandGroups() []*InstanceGroupPlan {
	var out []*InstanceGroupPlan
	for _, g := range p.Groups {
		if g.Errand() {
			out = append(out, g)
		}
	}
	return out
}

// IgnoredInstances returns every ignored instance bound by this plan,
// across all groups, whether or not the group is part of this run's
// rollout. The operator warning keys off this global inventory.
func (p *Plan) IgnoredInstances() []string {
	var out []string
	for _, g := range p.Groups {
		for _, ip := range g.Instances {
			if ip.Ignore {
				out = append(out, ip.ID)
			}
		}
	}
	return out
}

func deepCopyBag(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = deepCopyBag(nested)
			continue
		}
		out[k] = v
	}
	return out
}

package render

import (
	"context"
	"encoding/json"

	"github.com/Jeffail/gabs"
	"github.com/pkg/errors"

	"github.com/flotilla-deploy/flotilla/pkg/plan"
)

// PropertyRenderer is the built-in job renderer: it checks that every
// property a job requires is present in the group's merged bag, then
// writes the job's configuration artifact into the template cache.
// Required property paths come from a catalog keyed by job name,
// typically loaded from the release metadata.
type PropertyRenderer struct {
	// Required maps job name to the property paths its templates
	// reference, in dotted form ("db.host").
	Required map[string][]string
}

func (r *PropertyRenderer) RenderGroup(ctx context.Context, cache *plan.TemplateCache, g *plan.InstanceGroupPlan) error {
	var errs []error
	for _, link := range g.UnresolvedLinks {
		errs = append(errs, errors.Errorf("unresolved link: %s", link))
	}

	bag, err := gabs.Consume(toPlainBag(g.Properties))
	if err != nil {
		return errors.Wrapf(err, "loading properties for instance group %q", g.Name)
	}

	for _, job := range g.Jobs {
		missing := false
		for _, path := range r.Required[job.Name] {
			if !bag.ExistsP(path) {
				errs = append(errs, errors.Errorf("missing property %s", path))
				missing = true
			}
		}
		if missing {
			continue
		}
		artifact, err := json.Marshal(map[string]interface{}{
			"job":        job.Name,
			"release":    job.Release,
			"properties": g.Properties,
			"links":      g.ResolvedLinks,
		})
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "encoding artifact for job %q", job.Name))
			continue
		}
		cache.Put(g.Name+"/"+job.Name, artifact)
	}

	if len(errs) > 0 {
		return &rendererErrors{errs: errs}
	}
	return nil
}

// toPlainBag ensures the bag is addressable by gabs, which expects
// map[string]interface{} all the way down.
func toPlainBag(bag map[string]interface{}) map[string]interface{} {
	if bag == nil {
		return map[string]interface{}{}
	}
	return bag
}

type rendererErrors struct {
	errs []error
}

func (e *rendererErrors) Error() string {
	if len(e.errs) == 1 {
		return e.errs[0].Error()
	}
	return errors.Errorf("%d rendering errors", len(e.errs)).Error()
}

func (e *rendererErrors) Errors() []error {
	return e.errs
}

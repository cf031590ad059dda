package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/flotilla-deploy/flotilla/pkg/plan"
)

var placeholderPattern = regexp.MustCompile(`\(\(([\w._-]+)\)\)`)

// snapshotErrand resolves an errand group's links and interpolates its
// properties and link data against the group's bound variable set,
// storing the result on the group plan. All problems for the group are
// returned together.
func (c *Coordinator) snapshotErrand(p *plan.Plan, g *plan.InstanceGroupPlan) []error {
	var errs []error
	for _, link := range g.UnresolvedLinks {
		errs = append(errs, errors.Errorf("unresolved link: %s", link))
	}

	setID := errandVariableSet(p, g)
	lookup := func(name string) (interface{}, bool) {
		return c.vars.Get(p.Deployment.Name, setID, name)
	}

	props, perr := interpolateBag(g.Properties, lookup)
	if perr != nil {
		errs = append(errs, perr)
	} else {
		g.SnapshotProperties = props
	}

	links, lerr := interpolateBag(g.ResolvedLinks, lookup)
	if lerr != nil {
		errs = append(errs, lerr)
	} else {
		g.SnapshotLinks = links
	}

	return errs
}

// errandVariableSet picks the variable set generation the snapshot is
// taken against: the one the errand's instances are bound to, falling
// back to the deployment's current set for instance-less errands.
func errandVariableSet(p *plan.Plan, g *plan.InstanceGroupPlan) string {
	for _, ip := range g.NonIgnoredInstances() {
		if ip.VariableSetID != "" {
			return ip.VariableSetID
		}
	}
	return p.Deployment.CurrentVariableSet().ID
}

func interpolateBag(bag map[string]interface{}, lookup func(string) (interface{}, bool)) (map[string]interface{}, error) {
	if bag == nil {
		return nil, nil
	}
	out, err := interpolateValue(bag, lookup)
	if err != nil {
		return nil, err
	}
	return out.(map[string]interface{}), nil
}

func interpolateValue(v interface{}, lookup func(string) (interface{}, bool)) (interface{}, error) {
	switch val := v.(type) {
	case string:
		return interpolateString(val, lookup)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, nested := range val {
			iv, err := interpolateValue(nested, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = iv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, nested := range val {
			iv, err := interpolateValue(nested, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	default:
		return v, nil
	}
}

// interpolateString substitutes ((name)) placeholders. A string that is
// exactly one placeholder adopts the variable's value and type; mixed
// strings get the value formatted in place.
func interpolateString(s string, lookup func(string) (interface{}, bool)) (interface{}, error) {
	matches := placeholderPattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == s {
		value, ok := lookup(matches[0][1])
		if !ok {
			return nil, errors.Errorf("unresolved variable '%s'", matches[0][1])
		}
		return value, nil
	}

	result := s
	for _, m := range matches {
		value, ok := lookup(m[1])
		if !ok {
			return nil, errors.Errorf("unresolved variable '%s'", m[1])
		}
		result = strings.ReplaceAll(result, m[0], fmt.Sprintf("%v", value))
	}
	return result, nil
}

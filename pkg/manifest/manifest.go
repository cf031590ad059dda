// Package manifest defines the deployment manifest model and its
// parser. A manifest declares the desired state of one deployment: the
// releases and stemcells it is built from, its instance groups, and the
// variables whose values are generated at deploy time.
package manifest

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

const (
	// LifecycleService is the default lifecycle: instances are kept
	// running and converged on every deploy.
	LifecycleService = "service"
	// LifecycleErrand marks a group that only runs on demand. Errand
	// groups still need their variables snapshotted at deploy time.
	LifecycleErrand = "errand"
)

type Manifest struct {
	Name           string                 `json:"name"`
	Releases       []ReleaseRef           `json:"releases"`
	Stemcells      []StemcellRef          `json:"stemcells"`
	InstanceGroups []InstanceGroup        `json:"instance_groups"`
	Variables      []Variable             `json:"variables,omitempty"`
	Properties     map[string]interface{} `json:"properties,omitempty"`
	Update         *UpdateConfig          `json:"update,omitempty"`

	// Networks is only present in legacy manifests that carry their own
	// network topology instead of referring to a cloud config.
	Networks []Network `json:"networks,omitempty"`
}

type ReleaseRef struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (r ReleaseRef) String() string {
	return r.Name + "/" + r.Version
}

type StemcellRef struct {
	Alias   string `json:"alias"`
	OS      string `json:"os,omitempty"`
	Name    string `json:"name,omitempty"`
	Version string `json:"version"`
}

func (s StemcellRef) String() string {
	if s.OS != "" {
		return s.OS + "/" + s.Version
	}
	return s.Name + "/" + s.Version
}

type InstanceGroup struct {
	Name       string                 `json:"name"`
	Instances  int                    `json:"instances"`
	AZs        []string               `json:"azs,omitempty"`
	VMType     string                 `json:"vm_type,omitempty"`
	Stemcell   string                 `json:"stemcell,omitempty"`
	Lifecycle  string                 `json:"lifecycle,omitempty"`
	Jobs       []Job                  `json:"jobs"`
	Networks   []GroupNetwork         `json:"networks,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Update     *UpdateConfig          `json:"update,omitempty"`
}

// Errand reports whether the group only runs on demand.
func (g InstanceGroup) Errand() bool {
	return g.Lifecycle == LifecycleErrand
}

type Job struct {
	Name       string                 `json:"name"`
	Release    string                 `json:"release"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	// Provides maps link names to the data this job exposes to
	// consumers in other groups.
	Provides map[string]interface{} `json:"provides,omitempty"`
	// Consumes lists link names this job needs resolved from a
	// provider somewhere in the deployment.
	Consumes []string `json:"consumes,omitempty"`
}

type GroupNetwork struct {
	Name      string   `json:"name"`
	StaticIPs []string `json:"static_ips,omitempty"`
	Default   []string `json:"default,omitempty"`
}

type Network struct {
	Name    string                   `json:"name"`
	Type    string                   `json:"type"`
	Subnets []map[string]interface{} `json:"subnets,omitempty"`
}

type Variable struct {
	Name    string                 `json:"name"`
	Type    string                 `json:"type"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type UpdateConfig struct {
	Canaries        int    `json:"canaries,omitempty"`
	MaxInFlight     int    `json:"max_in_flight,omitempty"`
	CanaryWatchTime string `json:"canary_watch_time,omitempty"`
	UpdateWatchTime string `json:"update_watch_time,omitempty"`
	Serial          *bool  `json:"serial,omitempty"`
}

// HasEmbeddedTopology reports whether the manifest carries its own
// network topology. Such manifests take precedence over any centrally
// stored cloud config, for compatibility with pre-cloud-config
// tooling.
func (m *Manifest) HasEmbeddedTopology() bool {
	return len(m.Networks) > 0
}

// ErrandGroups returns the instance groups with an errand lifecycle, in
// manifest order.
func (m *Manifest) ErrandGroups() []InstanceGroup {
	var errands []InstanceGroup
	for _, g := range m.InstanceGroups {
		if g.Errand() {
			errands = append(errands, g)
		}
	}
	return errands
}

// validate applies the semantic checks that the JSON schema cannot
// express: reference integrity and version syntax.
func (m *Manifest) validate() error {
	if m.Name == "" {
		return errors.New("manifest is missing a deployment name")
	}

	releases := map[string]bool{}
	for _, r := range m.Releases {
		if releases[r.Name] {
			return errors.Errorf("duplicate release %q", r.Name)
		}
		releases[r.Name] = true
		if err := validVersion(r.Version); err != nil {
			return errors.Wrapf(err, "release %q", r.Name)
		}
	}

	stemcells := map[string]bool{}
	for _, s := range m.Stemcells {
		alias := s.Alias
		if alias == "" {
			return errors.New("stemcell is missing an alias")
		}
		if stemcells[alias] {
			return errors.Errorf("duplicate stemcell alias %q", alias)
		}
		stemcells[alias] = true
		if err := validVersion(s.Version); err != nil {
			return errors.Wrapf(err, "stemcell %q", alias)
		}
	}

	groups := map[string]bool{}
	for _, g := range m.InstanceGroups {
		if groups[g.Name] {
			return errors.Errorf("duplicate instance group %q", g.Name)
		}
		groups[g.Name] = true
		if g.Lifecycle != "" && g.Lifecycle != LifecycleService && g.Lifecycle != LifecycleErrand {
			return errors.Errorf("instance group %q has unknown lifecycle %q", g.Name, g.Lifecycle)
		}
		if g.Stemcell != "" && !stemcells[g.Stemcell] {
			return errors.Errorf("instance group %q references unknown stemcell %q", g.Name, g.Stemcell)
		}
		for _, j := range g.Jobs {
			if j.Release != "" && !releases[j.Release] {
				return errors.Errorf("job %q in instance group %q references unknown release %q", j.Name, g.Name, j.Release)
			}
		}
	}

	return nil
}

// validVersion accepts semver versions, and "latest" as a floating
// reference.
func validVersion(v string) error {
	if v == "" {
		return errors.New("missing version")
	}
	if v == "latest" {
		return nil
	}
	if _, err := semver.NewVersion(v); err != nil {
		return fmt.Errorf("version %q is not a valid semantic version", v)
	}
	return nil
}

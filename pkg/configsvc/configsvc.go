// Package configsvc stores and resolves the cloud and runtime
// configuration snapshots a deploy refers to by opaque id. Resolution
// is deliberately forgiving: a reference to a snapshot that does not
// exist degrades to "no configuration" rather than failing the deploy.
package configsvc

import (
	"sync"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/ryanuber/go-glob"
	yamlv2 "gopkg.in/yaml.v2"
)

// CloudConfig describes the infrastructure topology deployments place
// their instances into.
type CloudConfig struct {
	ID       string
	AZs      []AZ       `yaml:"azs"`
	VMTypes  []VMType   `yaml:"vm_types"`
	Networks []CloudNet `yaml:"networks"`
}

type AZ struct {
	Name string `yaml:"name"`
}

type VMType struct {
	Name string `yaml:"name"`
}

type CloudNet struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ParseCloudConfig decodes a cloud config snapshot from YAML.
func ParseCloudConfig(id string, text []byte) (*CloudConfig, error) {
	var cc CloudConfig
	if err := yamlv2.Unmarshal(text, &cc); err != nil {
		return nil, errors.Wrap(err, "parsing cloud config")
	}
	cc.ID = id
	return &cc, nil
}

// RuntimeConfig carries director-wide additions layered onto matching
// deployment manifests at plan time.
type RuntimeConfig struct {
	ID string
	// Include and Exclude are deployment-name globs deciding which
	// deployments this config applies to. Empty Include matches all.
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
	// Properties are merged onto the manifest's property bag as a JSON
	// merge patch.
	Properties map[string]interface{} `json:"properties,omitempty"`
	// Releases are added to the deployment's inventory.
	Releases []RuntimeRelease `json:"releases,omitempty"`
}

type RuntimeRelease struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ParseRuntimeConfig decodes a runtime config snapshot from YAML.
func ParseRuntimeConfig(id string, text []byte) (*RuntimeConfig, error) {
	doc, err := yaml.YAMLToJSON(text)
	if err != nil {
		return nil, errors.Wrap(err, "parsing runtime config")
	}
	rc := RuntimeConfig{ID: id}
	if err := yaml.Unmarshal(doc, &rc); err != nil {
		return nil, errors.Wrap(err, "decoding runtime config")
	}
	return &rc, nil
}

// AppliesTo reports whether this runtime config should be layered onto
// the named deployment, per its include/exclude globs.
func (rc *RuntimeConfig) AppliesTo(deployment string) bool {
	for _, pattern := range rc.Exclude {
		if glob.Glob(pattern, deployment) {
			return false
		}
	}
	if len(rc.Include) == 0 {
		return true
	}
	for _, pattern := range rc.Include {
		if glob.Glob(pattern, deployment) {
			return true
		}
	}
	return false
}

// MergeProperties applies the runtime config's properties to a manifest
// serialized as JSON, returning the patched document. Manifest values
// win nothing here: runtime config properties override, which is the
// point of a director-wide config.
func (rc *RuntimeConfig) MergeProperties(manifestJSON []byte) ([]byte, error) {
	if len(rc.Properties) == 0 {
		return manifestJSON, nil
	}
	patch, err := yaml.Marshal(map[string]interface{}{"properties": rc.Properties})
	if err != nil {
		return nil, errors.Wrap(err, "encoding runtime config properties")
	}
	patchJSON, err := yaml.YAMLToJSON(patch)
	if err != nil {
		return nil, errors.Wrap(err, "encoding runtime config patch")
	}
	merged, err := jsonpatch.MergePatch(manifestJSON, patchJSON)
	if err != nil {
		return nil, errors.Wrap(err, "merging runtime config into manifest")
	}
	return merged, nil
}

// Store keeps config snapshots by id.
type Store interface {
	CloudConfig(id string) (*CloudConfig, bool, error)
	RuntimeConfig(id string) (*RuntimeConfig, bool, error)
	PutCloudConfig(*CloudConfig) error
	PutRuntimeConfig(*RuntimeConfig) error
}

type inmemStore struct {
	mtx     sync.Mutex
	cloud   map[string]*CloudConfig
	runtime map[string]*RuntimeConfig
}

func NewInmemStore() Store {
	return &inmemStore{
		cloud:   map[string]*CloudConfig{},
		runtime: map[string]*RuntimeConfig{},
	}
}

func (s *inmemStore) CloudConfig(id string) (*CloudConfig, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	cc, ok := s.cloud[id]
	return cc, ok, nil
}

func (s *inmemStore) RuntimeConfig(id string) (*RuntimeConfig, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	rc, ok := s.runtime[id]
	return rc, ok, nil
}

func (s *inmemStore) PutCloudConfig(cc *CloudConfig) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.cloud[cc.ID] = cc
	return nil
}

func (s *inmemStore) PutRuntimeConfig(rc *RuntimeConfig) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.runtime[rc.ID] = rc
	return nil
}

package manifest

import (
	"bytes"
	"encoding/json"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// schema constrains the structure of a manifest before we try to give
// its contents meaning. Anything this rejects is malformed input, which
// is fatal and not retried.
const schema = `{
  "type": "object",
  "required": ["name", "instance_groups"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "releases": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "version"],
        "properties": {
          "name": {"type": "string"},
          "version": {"type": "string"}
        }
      }
    },
    "stemcells": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["alias", "version"],
        "properties": {
          "alias": {"type": "string"},
          "os": {"type": "string"},
          "name": {"type": "string"},
          "version": {"type": "string"}
        }
      }
    },
    "instance_groups": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "instances": {"type": "integer", "minimum": 0},
          "lifecycle": {"type": "string"},
          "jobs": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name"],
              "properties": {
                "name": {"type": "string"},
                "release": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "variables": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "type"],
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"}
        }
      }
    },
    "properties": {"type": "object"},
    "networks": {"type": "array"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(schema)

// Parse turns manifest text into a validated Manifest. The text is
// YAML; it is converted to JSON first so that the schema check and the
// struct decoding agree about types.
func Parse(text []byte) (*Manifest, error) {
	doc, err := yaml.YAMLToJSON(text)
	if err != nil {
		return nil, errors.Wrap(err, "parsing manifest YAML")
	}
	doc, err = coerceVersions(doc)
	if err != nil {
		return nil, errors.Wrap(err, "parsing manifest YAML")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, errors.Wrap(err, "validating manifest")
	}
	if !result.Valid() {
		return nil, errors.Errorf("manifest is not well formed: %s", result.Errors()[0].String())
	}

	var m Manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, errors.Wrap(err, "decoding manifest")
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// coerceVersions rewrites numeric version scalars in release and
// stemcell references to strings. Manifests routinely write
// `version: 3586.24` unquoted, which YAML hands over as a number.
func coerceVersions(doc []byte) ([]byte, error) {
	var top map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&top); err != nil {
		// Not an object; the schema check reports that.
		return doc, nil
	}

	changed := false
	for _, key := range []string{"releases", "stemcells"} {
		list, ok := top[key].([]interface{})
		if !ok {
			continue
		}
		for _, item := range list {
			ref, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if n, ok := ref["version"].(json.Number); ok {
				ref["version"] = n.String()
				changed = true
			}
		}
	}
	if !changed {
		return doc, nil
	}
	return json.Marshal(top)
}

// AsJSON returns the manifest serialized as JSON, the form the runtime
// config merge operates on.
func (m *Manifest) AsJSON() ([]byte, error) {
	return json.Marshal(m)
}

package schema

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a schema definition. Exactly one of the fields must be set:
//
//	entity_types: [PERSON_NAME, EMAIL]
//
// or an explicit tag list, where ids are positions:
//
//	tags: [O, B-PERSON_NAME, I-PERSON_NAME, B-EMAIL, I-EMAIL]
type File struct {
	EntityTypes []EntityType `yaml:"entity_types,omitempty"`
	Tags        []string     `yaml:"tags,omitempty"`
}

// Parse builds a schema from YAML content.
func Parse(content []byte) (*Schema, error) {
	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse schema YAML")
	}
	switch {
	case len(f.EntityTypes) > 0 && len(f.Tags) > 0:
		return nil, schemaErrorf("both entity_types and tags are set, only one is allowed")
	case len(f.Tags) > 0:
		return FromTags(f.Tags)
	default:
		return New(f.EntityTypes)
	}
}

// Load reads and parses a schema YAML file.
func Load(filePath string) (*Schema, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema file %q", filePath)
	}
	s, err := Parse(content)
	if err != nil {
		return nil, errors.WithMessagef(err, "schema file %q", filePath)
	}
	return s, nil
}

// Marshal returns the schema as a YAML tag list, which Parse reads back into an identical schema.
func (s *Schema) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(File{Tags: s.tags})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	return out, nil
}

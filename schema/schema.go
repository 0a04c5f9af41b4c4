// Package schema defines the label vocabulary shared by the generator, the BIO encoder/decoder
// and the evaluator.
//
// A Schema is built once from an ordered list of entity types and is immutable afterwards, so it
// can be shared by reference across goroutines without synchronization.
//
// The tag vocabulary is always laid out as:
//
//	[O, B-T1, I-T1, B-T2, I-T2, ...]
//
// with O fixed at id 0.
package schema

import (
	"fmt"
	"strings"
)

// EntityType is the name of a PII category, e.g. "EMAIL".
type EntityType string

// Default entity types.
const (
	PersonName EntityType = "PERSON_NAME"
	Email      EntityType = "EMAIL"
	Phone      EntityType = "PHONE"
	CreditCard EntityType = "CREDIT_CARD"
	Date       EntityType = "DATE"
	City       EntityType = "CITY"
	Location   EntityType = "LOCATION"
)

// DefaultEntityTypes lists the default entity types, in vocabulary order.
var DefaultEntityTypes = []EntityType{PersonName, Email, Phone, CreditCard, Date, City, Location}

// Tag prefixes and the outside tag.
const (
	Outside      = "O"
	BeginPrefix  = "B-"
	InsidePrefix = "I-"
)

// OutsideID is the id of the O tag in every schema.
const OutsideID = 0

// Kind of a tag: outside, beginning or inside of an entity.
type Kind int

const (
	KindOutside Kind = iota
	KindBegin
	KindInside
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindOutside:
		return "O"
	case KindBegin:
		return "B"
	case KindInside:
		return "I"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SchemaError reports an invalid entity-type or tag configuration.
type SchemaError struct {
	Reason string
}

// Error implements error.
func (e *SchemaError) Error() string {
	return "invalid label schema: " + e.Reason
}

func schemaErrorf(format string, args ...any) error {
	return &SchemaError{Reason: fmt.Sprintf(format, args...)}
}

type tagInfo struct {
	kind       Kind
	entityType EntityType
}

// Schema is the immutable tag vocabulary. Create it with New, FromTags, Parse or Load.
type Schema struct {
	types  []EntityType
	tags   []string
	info   []tagInfo
	tagIDs map[string]int
	begin  map[EntityType]int
	inside map[EntityType]int
}

// New builds the schema for the given entity types, in the given order.
func New(types []EntityType) (*Schema, error) {
	if len(types) == 0 {
		return nil, schemaErrorf("no entity types given")
	}
	tags := make([]string, 0, 1+2*len(types))
	tags = append(tags, Outside)
	for _, t := range types {
		tags = append(tags, BeginPrefix+string(t), InsidePrefix+string(t))
	}
	return FromTags(tags)
}

// Default returns the schema for DefaultEntityTypes.
func Default() *Schema {
	s, err := New(DefaultEntityTypes)
	if err != nil {
		panic(err)
	}
	return s
}

// FromTags builds a schema from an explicit ordered tag list: ids are the positions in the list.
// O must come first and every declared entity type must have exactly one B- and one I- tag.
func FromTags(tags []string) (*Schema, error) {
	if len(tags) == 0 || tags[0] != Outside {
		return nil, schemaErrorf("tag list must start with %q", Outside)
	}
	s := &Schema{
		tags:   make([]string, len(tags)),
		info:   make([]tagInfo, len(tags)),
		tagIDs: make(map[string]int, len(tags)),
		begin:  make(map[EntityType]int),
		inside: make(map[EntityType]int),
	}
	copy(s.tags, tags)
	for id, tag := range tags {
		if _, dup := s.tagIDs[tag]; dup {
			return nil, schemaErrorf("duplicate tag %q", tag)
		}
		s.tagIDs[tag] = id
		if id == OutsideID {
			continue
		}
		var (
			kind   Kind
			target map[EntityType]int
			name   string
		)
		switch {
		case strings.HasPrefix(tag, BeginPrefix):
			kind, target, name = KindBegin, s.begin, strings.TrimPrefix(tag, BeginPrefix)
		case strings.HasPrefix(tag, InsidePrefix):
			kind, target, name = KindInside, s.inside, strings.TrimPrefix(tag, InsidePrefix)
		default:
			return nil, schemaErrorf("tag %q at position %d is neither %q nor prefixed with %q/%q",
				tag, id, Outside, BeginPrefix, InsidePrefix)
		}
		et := EntityType(name)
		if err := validateEntityType(et); err != nil {
			return nil, err
		}
		target[et] = id
		s.info[id] = tagInfo{kind: kind, entityType: et}
		if kind == KindBegin {
			s.types = append(s.types, et)
		}
	}
	for et := range s.inside {
		if _, ok := s.begin[et]; !ok {
			return nil, schemaErrorf("tag %s%s has no matching %s%s", InsidePrefix, et, BeginPrefix, et)
		}
	}
	for _, et := range s.types {
		if _, ok := s.inside[et]; !ok {
			return nil, schemaErrorf("tag %s%s has no matching %s%s", BeginPrefix, et, InsidePrefix, et)
		}
	}
	if len(s.types) == 0 {
		return nil, schemaErrorf("no entity types given")
	}
	return s, nil
}

func validateEntityType(et EntityType) error {
	name := string(et)
	switch {
	case name == "":
		return schemaErrorf("empty entity type")
	case name == Outside:
		return schemaErrorf("entity type %q collides with the outside tag", name)
	case strings.HasPrefix(name, BeginPrefix), strings.HasPrefix(name, InsidePrefix):
		return schemaErrorf("entity type %q must not carry a tag prefix", name)
	case strings.ContainsFunc(name, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }):
		return schemaErrorf("entity type %q contains whitespace", name)
	}
	return nil
}

// EntityTypes returns the entity types in vocabulary order. The returned slice must not be modified.
func (s *Schema) EntityTypes() []EntityType { return s.types }

// Tags returns the tag strings indexed by id. The returned slice must not be modified.
func (s *Schema) Tags() []string { return s.tags }

// NumTags returns the size of the tag vocabulary, including O.
func (s *Schema) NumTags() int { return len(s.tags) }

// Has reports whether et is declared in the schema.
func (s *Schema) Has(et EntityType) bool {
	_, ok := s.begin[et]
	return ok
}

// TagID returns the id of the tag string.
func (s *Schema) TagID(tag string) (int, bool) {
	id, ok := s.tagIDs[tag]
	return id, ok
}

// Tag returns the tag string for id.
func (s *Schema) Tag(id int) (string, bool) {
	if id < 0 || id >= len(s.tags) {
		return "", false
	}
	return s.tags[id], true
}

// BeginID returns the id of B-<et>.
func (s *Schema) BeginID(et EntityType) (int, bool) {
	id, ok := s.begin[et]
	return id, ok
}

// InsideID returns the id of I-<et>.
func (s *Schema) InsideID(et EntityType) (int, bool) {
	id, ok := s.inside[et]
	return id, ok
}

// Lookup returns the kind and entity type of a tag id. ok is false if the id is outside the vocabulary.
// For O the entity type is empty.
func (s *Schema) Lookup(id int) (kind Kind, et EntityType, ok bool) {
	if id < 0 || id >= len(s.info) {
		return KindOutside, "", false
	}
	info := s.info[id]
	return info.kind, info.entityType, true
}

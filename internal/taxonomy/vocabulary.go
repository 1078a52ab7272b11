// Package taxonomy converts the classifier's symbolic tag names into the
// stable tag-id representation used for storage and querying.
package taxonomy

import (
	"github.com/adstia/call-tagging/internal/model"
)

// Vocabulary is an immutable snapshot of the tag definitions, indexed both
// ways. Built once per pass; read-only afterwards.
type Vocabulary struct {
	byValue map[string]model.TagDefinition
	byID    map[int]model.TagDefinition
}

// NewVocabulary indexes the given tag definitions. Later duplicates of the
// same value win, matching "last administrative update is authoritative".
func NewVocabulary(defs []model.TagDefinition) *Vocabulary {
	v := &Vocabulary{
		byValue: make(map[string]model.TagDefinition, len(defs)),
		byID:    make(map[int]model.TagDefinition, len(defs)),
	}
	for _, d := range defs {
		if d.Value == "" {
			continue
		}
		v.byValue[d.Value] = d
		v.byID[d.ID] = d
	}
	return v
}

// Len returns the number of distinct tag values in the vocabulary.
func (v *Vocabulary) Len() int {
	return len(v.byValue)
}

// Resolve maps a symbolic tag value to its definition.
func (v *Vocabulary) Resolve(value string) (model.TagDefinition, bool) {
	d, ok := v.byValue[value]
	return d, ok
}

// Lookup maps a tag id back to its definition.
func (v *Vocabulary) Lookup(id int) (model.TagDefinition, bool) {
	d, ok := v.byID[id]
	return d, ok
}

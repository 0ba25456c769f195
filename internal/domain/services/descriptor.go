package services

import (
	"regexp"
	"strings"

	"github.com/quillsign/quillsign/internal/infrastructure/database/models"
)

// Fillable form fields declare themselves through a specifier written
// into the field's template value:
//
//	{ <type> }            a directly filled field
//	{ <type> : <parent> } a field derived from another field
//
// The only derived type today is date, stamped automatically when the
// parent field is filled.
var fieldSpecifierPattern = regexp.MustCompile(
	`^\s*\{\s*([\w._,?+=\-&*^%$#@! ]+?)\s*(?::\s*([\w. ]+?)\s*)?\}\s*$`,
)

// FieldDescriptor is the parsed form of a field specifier.
type FieldDescriptor struct {
	Name   string
	Type   string
	Parent string
}

// ParseFieldDescriptor parses a form field's template value. A nil
// return means the field carries no specifier and is not fillable.
func ParseFieldDescriptor(name, value string) *FieldDescriptor {
	match := fieldSpecifierPattern.FindStringSubmatch(value)
	if match == nil {
		return nil
	}
	return &FieldDescriptor{
		Name:   name,
		Type:   strings.TrimSpace(match[1]),
		Parent: strings.TrimSpace(match[2]),
	}
}

// ValidType reports whether the descriptor names a known field type.
func (d *FieldDescriptor) ValidType() bool {
	return models.ValidFieldType(d.Type)
}

// validDependentType reports whether a descriptor with a parent may
// carry this type.
func validDependentType(t string) bool {
	return t == string(models.FieldTypeDate)
}

// referenceFields filters the extracted form fields down to the parsed
// descriptors that declare a parent.
func referenceFields(fields map[string]string) []*FieldDescriptor {
	var refs []*FieldDescriptor
	for name, value := range fields {
		if desc := ParseFieldDescriptor(name, value); desc != nil && desc.Parent != "" {
			refs = append(refs, desc)
		}
	}
	return refs
}

// Package model holds the data types shared by the ledger, index store and
// search packages.
package model

import "fmt"

// ResourceType identifies the kind of resource a change or indexed document belongs to.
type ResourceType string

const (
	ResourceTranslationPair ResourceType = "translation_pair"
	ResourceSourceText      ResourceType = "source_text"
	ResourceZeroDraft       ResourceType = "zero_draft"
	ResourceDynamicTable    ResourceType = "dynamic_table"
	ResourceVerseRef        ResourceType = "verse_ref"
)

// AllResourceTypes returns every known resource type in a stable order.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceTranslationPair,
		ResourceSourceText,
		ResourceZeroDraft,
		ResourceDynamicTable,
		ResourceVerseRef,
	}
}

// Valid reports whether r is one of the known resource types.
func (r ResourceType) Valid() bool {
	for _, known := range AllResourceTypes() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseResourceType converts a string into a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	r := ResourceType(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown resource type %q", s)
	}
	return r, nil
}

// ChangeType is the kind of mutation observed on a resource.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Valid reports whether c is create, update or delete.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// Side says whether a cell belongs to the source text or the translation.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// ResourceType returns the resource type cells on this side are indexed under.
func (s Side) ResourceType() ResourceType {
	if s == SideSource {
		return ResourceSourceText
	}
	return ResourceTranslationPair
}

// SideForResourceType maps an indexed resource type back to a cell side.
// The second return is false for resource types that are not cell sides.
func SideForResourceType(r ResourceType) (Side, bool) {
	switch r {
	case ResourceSourceText:
		return SideSource, true
	case ResourceTranslationPair, ResourceZeroDraft:
		return SideTarget, true
	}
	return "", false
}

// Cell is a single addressable text unit on one side of the corpus.
type Cell struct {
	CellID  string `json:"cellId"`
	Content string `json:"content"`
	URI     string `json:"uri"`
	Line    int    `json:"line"`
}

// TranslationPair joins the source and target cells that share a vref.
// Either side may be empty when only one side has been indexed.
type TranslationPair struct {
	CellID     string `json:"cellId"`
	SourceCell Cell   `json:"sourceCell"`
	TargetCell Cell   `json:"targetCell"`
}

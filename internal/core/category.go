package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CategoryKind tags the variant held by a CategoryRef.
type CategoryKind string

const (
	// CategorySingle references one category row by id.
	CategorySingle CategoryKind = "single"
	// CategorySplit marks a transaction allocated across several categories;
	// only a display label survives on the transaction itself.
	CategorySplit CategoryKind = "split"
	// CategoryNamed carries a display name with no category row behind it,
	// e.g. free text or a category that has since been deleted.
	CategoryNamed CategoryKind = "named"
)

// CategoryRef is how a transaction or rule points at its category.
type CategoryRef struct {
	kind  CategoryKind
	id    string
	label string
}

// SingleCategory references category id, keeping name for display.
func SingleCategory(id, name string) CategoryRef {
	if strings.TrimSpace(id) == "" {
		return NamedCategory(name)
	}
	return CategoryRef{kind: CategorySingle, id: id, label: strings.TrimSpace(name)}
}

// NamedCategory is a display name with no category row.
func NamedCategory(name string) CategoryRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return CategoryRef{}
	}
	return CategoryRef{kind: CategoryNamed, label: name}
}

// SplitAcrossMany builds the list-view label of a split transaction from the
// involved category names, in order and without duplicates.
func SplitAcrossMany(names ...string) CategoryRef {
	seen := make(map[string]struct{}, len(names))
	var parts []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		parts = append(parts, n)
	}
	return CategoryRef{kind: CategorySplit, label: strings.Join(parts, ", ")}
}

// CategoryFromColumns rebuilds a ref from its persisted columns.
func CategoryFromColumns(name, id string, isSplit bool) CategoryRef {
	if isSplit {
		return CategoryRef{kind: CategorySplit, label: name}
	}
	return SingleCategory(id, name)
}

// Columns returns the persisted representation: display name, nullable id
// and the split flag.
func (r CategoryRef) Columns() (name, id string, isSplit bool) {
	return r.label, r.id, r.kind == CategorySplit
}

func (r CategoryRef) Kind() CategoryKind { return r.kind }

// ID returns the referenced category id, or "" when the ref is not single.
func (r CategoryRef) ID() string { return r.id }

// Label is the display string for list views.
func (r CategoryRef) Label() string { return r.label }

func (r CategoryRef) IsSplit() bool { return r.kind == CategorySplit }

func (r CategoryRef) IsZero() bool { return r.kind == "" }

// Detach drops the category id and keeps the display name.
func (r CategoryRef) Detach() CategoryRef {
	if r.kind != CategorySingle {
		return r
	}
	return NamedCategory(r.label)
}

// Matches reports whether a non-split ref points at the given category,
// by id when both sides have one and by display name otherwise.
func (r CategoryRef) Matches(id, name string) bool {
	switch r.kind {
	case CategorySingle:
		if id != "" {
			return r.id == id
		}
		return r.label == strings.TrimSpace(name)
	case CategoryNamed:
		return r.label == strings.TrimSpace(name)
	default:
		return false
	}
}

func (r CategoryRef) String() string { return r.label }

type categoryRefJSON struct {
	Kind  CategoryKind `json:"kind,omitempty"`
	ID    string       `json:"id,omitempty"`
	Label string       `json:"label,omitempty"`
}

func (r CategoryRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(categoryRefJSON{Kind: r.kind, ID: r.id, Label: r.label})
}

// UnmarshalJSON accepts the tagged object form or a bare category name.
func (r *CategoryRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*r = NamedCategory(name)
		return nil
	}
	var raw categoryRefJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	switch raw.Kind {
	case CategorySplit:
		*r = CategoryRef{kind: CategorySplit, label: raw.Label}
	case CategorySingle, "":
		*r = SingleCategory(raw.ID, raw.Label)
	case CategoryNamed:
		*r = NamedCategory(raw.Label)
	default:
		return fmt.Errorf("category: unknown kind %q", raw.Kind)
	}
	return nil
}

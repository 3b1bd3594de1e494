package session

// Filter is the predicate tree sent to the upstream provider with name
// searches. A node is either a leaf predicate (attribute/relation/value) or a
// connective combining child propositions; exactly one shape is populated.
// The JSON layout mirrors the upstream wire format.
type Filter struct {
	Type string `json:"type,omitempty"`

	// Predicate fields.
	Attribute string `json:"attribute,omitempty"`
	Relation  string `json:"relation,omitempty"`
	Value     any    `json:"value,omitempty"`

	// Connective fields.
	Operator     string   `json:"operator,omitempty"`
	Propositions []Filter `json:"propositions,omitempty"`
}

// Predicate builds a typed leaf predicate.
func Predicate(attribute, relation string, value any) Filter {
	return Filter{
		Type:      "predicate",
		Attribute: attribute,
		Relation:  relation,
		Value:     value,
	}
}

// Match builds a bare "matches" predicate, the shape used for the implicit
// email/phone/address filters where the upstream accepts an untyped leaf.
func Match(attribute string, value any) Filter {
	return Filter{
		Attribute: attribute,
		Relation:  "matches",
		Value:     value,
	}
}

// And combines propositions under a single "and" connective.
func And(propositions ...Filter) Filter {
	return Filter{
		Type:         "connective",
		Operator:     "and",
		Propositions: propositions,
	}
}

// IsZero reports whether the filter node is empty.
func (f *Filter) IsZero() bool {
	return f == nil || (f.Attribute == "" && f.Operator == "" && len(f.Propositions) == 0)
}

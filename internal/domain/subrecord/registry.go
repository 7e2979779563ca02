package subrecord

import "fmt"

// Capabilities describes a subrecord kind. Every kind has exactly one
// descriptor in the registry.
type Capabilities struct {
	Kind      Kind   `json:"api_name"`
	Name      string `json:"name"`
	Title     string `json:"display_name"`
	Scope     Scope  `json:"scope"`
	Singleton bool   `json:"single"`
	Clonable  bool   `json:"clonable"`

	new func() Fields
}

// New returns an empty payload for the kind.
func (c Capabilities) New() Fields {
	return c.new()
}

var registry = []Capabilities{
	{Kind: KindDemographics, Name: "Demographics", Title: "Demographics", Scope: ScopePatient, Singleton: true,
		new: func() Fields { return &Demographics{} }},
	{Kind: KindAllergy, Name: "Allergy", Title: "Allergies", Scope: ScopePatient, Clonable: true,
		new: func() Fields { return &Allergy{} }},
	{Kind: KindLocation, Name: "Location", Title: "Location", Scope: ScopeEpisode, Singleton: true, Clonable: true,
		new: func() Fields { return &Location{} }},
	{Kind: KindInvestigation, Name: "Investigation", Title: "Investigations", Scope: ScopeEpisode, Clonable: true,
		new: func() Fields { return &Investigation{} }},
	{Kind: KindTreatment, Name: "Treatment", Title: "Treatment", Scope: ScopeEpisode, Clonable: true,
		new: func() Fields { return &Treatment{} }},
	{Kind: KindDiagnosis, Name: "Diagnosis", Title: "Diagnosis", Scope: ScopeEpisode, Clonable: true,
		new: func() Fields { return &Diagnosis{} }},
	{Kind: KindTagging, Name: "Tagging", Title: "Teams", Scope: ScopeEpisode, Singleton: true,
		new: func() Fields { return &Tagging{} }},
}

var byKind = func() map[Kind]Capabilities {
	m := make(map[Kind]Capabilities, len(registry))
	for _, c := range registry {
		m[c.Kind] = c
	}
	return m
}()

// All returns every registered kind in declaration order.
func All() []Capabilities {
	out := make([]Capabilities, len(registry))
	copy(out, registry)
	return out
}

// InScope returns the kinds attached to the given owner type.
func InScope(scope Scope) []Capabilities {
	var out []Capabilities
	for _, c := range registry {
		if c.Scope == scope {
			out = append(out, c)
		}
	}
	return out
}

// Lookup returns the descriptor for kind.
func Lookup(kind Kind) (Capabilities, bool) {
	c, ok := byKind[kind]
	return c, ok
}

// MustLookup panics for an unregistered kind.
func MustLookup(kind Kind) Capabilities {
	c, ok := byKind[kind]
	if !ok {
		panic(fmt.Sprintf("subrecord: unregistered kind %q", kind))
	}
	return c
}

// IsKey reports whether key is the document key of a kind in scope.
func IsKey(scope Scope, key string) bool {
	c, ok := byKind[Kind(key)]
	return ok && c.Scope == scope
}

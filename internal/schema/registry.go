// Package schema holds the closed set of entity schemas known to the client
// and the normalization that flattens a pushed record into an entity graph.
package schema

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Kind identifies one schema in the closed registry.
type Kind int

const (
	KindUnknown Kind = iota
	KindStatement
	KindOrganisation
	KindUser
	KindStore
	KindClient
	KindQuery
	KindVisualisation
	KindDashboard
	KindPersona
	KindPersonaIdentifier
	KindPersonaAttribute
	KindStatementForwarding
	KindRole
	KindDownload
	KindExport
	KindImportCSV
	KindJourney
)

// entity type names, indexed by Kind
var kindNames = [...]string{
	KindUnknown:             "unknown",
	KindStatement:           "statement",
	KindOrganisation:        "organisation",
	KindUser:                "user",
	KindStore:               "store",
	KindClient:              "client",
	KindQuery:               "query",
	KindVisualisation:       "visualisation",
	KindDashboard:           "dashboard",
	KindPersona:             "persona",
	KindPersonaIdentifier:   "personaIdentifier",
	KindPersonaAttribute:    "personaAttribute",
	KindStatementForwarding: "statementForwarding",
	KindRole:                "role",
	KindDownload:            "download",
	KindExport:              "export",
	KindImportCSV:           "importcsv",
	KindJourney:             "journey",
}

// String returns the entity type name used as the first level of a Graph.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Relation declares an attribute holding one or many related records.
type Relation struct {
	Attribute string
	Target    Kind
	Many      bool
}

// Definition describes how records of a kind are keyed and related.
type Definition struct {
	Kind        Kind
	IDAttribute string
	Relations   []Relation
}

// DefaultIDAttribute is the primary key attribute of every record.
// FallbackIDAttribute is used when a record carries no DefaultIDAttribute.
const (
	DefaultIDAttribute  = "_id"
	FallbackIDAttribute = "id"
)

var definitions = map[Kind]Definition{
	KindStatement:    {},
	KindOrganisation: {},
	KindUser: {Relations: []Relation{
		{Attribute: "organisations", Target: KindOrganisation, Many: true},
	}},
	KindStore: {},
	KindClient: {Relations: []Relation{
		{Attribute: "lrs_id", Target: KindStore},
	}},
	KindQuery: {},
	KindVisualisation: {Relations: []Relation{
		{Attribute: "owner", Target: KindUser},
	}},
	KindDashboard: {Relations: []Relation{
		{Attribute: "owner", Target: KindUser},
	}},
	KindPersona: {},
	KindPersonaIdentifier: {Relations: []Relation{
		{Attribute: "persona", Target: KindPersona},
	}},
	KindPersonaAttribute: {Relations: []Relation{
		{Attribute: "personaId", Target: KindPersona},
	}},
	KindStatementForwarding: {Relations: []Relation{
		{Attribute: "lrs_id", Target: KindStore},
	}},
	KindRole:      {},
	KindDownload:  {},
	KindExport:    {},
	KindImportCSV: {},
	KindJourney:   {},
}

// lookup maps folded schema names to kinds.
var lookup = make(map[string]Kind, len(kindNames))

func init() {
	for k := range definitions {
		def := definitions[k]
		def.Kind = k
		if def.IDAttribute == "" {
			def.IDAttribute = DefaultIDAttribute
		}
		definitions[k] = def
		lookup[foldName(k.String())] = k
	}
}

// UnknownSchemaError reports a schema name outside the closed registry.
type UnknownSchemaError struct {
	Name string
}

func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("unknown schema %q", e.Name)
}

// Lookup resolves a schema name sent by the server. Matching ignores case
// and word separators, so "Statement", "statement_forwarding" and
// "Statement Forwarding" all resolve.
func Lookup(name string) (Kind, error) {
	if k, ok := lookup[foldName(name)]; ok {
		return k, nil
	}
	return KindUnknown, &UnknownSchemaError{Name: name}
}

// Definition returns the definition for k.
func (k Kind) Definition() (Definition, bool) {
	def, ok := definitions[k]
	return def, ok
}

// Kinds returns every known kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(definitions))
	for k := KindStatement; int(k) < len(kindNames); k++ {
		out = append(out, k)
	}
	return out
}

func foldName(name string) string {
	// Caser values are stateful; one per call.
	folded := cases.Fold().String(name)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '.':
			return -1
		}
		return r
	}, folded)
}

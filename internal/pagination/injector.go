package pagination

import (
	"encoding/json"

	"github.com/rickgao/livesync/internal/protocol"
	"github.com/rickgao/livesync/internal/schema"
)

// Rule says which list a pushed entity of Kind belongs to.
type Rule struct {
	Kind   schema.Kind
	Filter json.RawMessage
	Sort   protocol.OrderSpec
}

// StatementSort is the ordering of the statement list pushes land in.
var StatementSort = protocol.OrderSpec{
	{Field: "_id", Order: 1},
	{Field: "timestamp", Order: -1},
}

// DefaultRules injects statements into the unfiltered statement list.
func DefaultRules() []Rule {
	return []Rule{{
		Kind:   schema.KindStatement,
		Filter: json.RawMessage(`{}`),
		Sort:   StatementSort,
	}}
}

// Injector maps normalized pushes to page updates.
type Injector struct {
	rules map[schema.Kind]Rule
}

// NewInjector creates an injector. With no rules it uses DefaultRules.
func NewInjector(rules ...Rule) *Injector {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	m := make(map[schema.Kind]Rule, len(rules))
	for _, r := range rules {
		m[r.Kind] = r
	}
	return &Injector{rules: m}
}

// Inject builds the update for one push. It returns false when no rule
// covers the push's kind.
func (i *Injector) Inject(push protocol.Push, res schema.Result) (Update, bool) {
	rule, ok := i.rules[res.Kind]
	if !ok {
		return Update{}, false
	}

	filter := rule.Filter
	if len(filter) == 0 {
		filter = json.RawMessage(`{}`)
	}

	return Update{
		Schema:    res.Kind.String(),
		Filter:    filter,
		Sort:      rule.Sort,
		Direction: protocol.Backward,
		Cursor:    UpdateCursor{Before: push.Before},
		Edges:     []Edge{{ID: res.ID, Cursor: push.Cursor}},
		IDs:       []string{res.ID},
		PageInfo: PageInfo{
			StartCursor:     push.Cursor,
			EndCursor:       push.Cursor,
			HasNextPage:     false,
			HasPreviousPage: true,
		},
	}, true
}

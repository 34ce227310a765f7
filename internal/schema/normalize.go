package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMissingID is returned when a record has no usable id.
var ErrMissingID = errors.New("record has no id")

// Entity is one flattened record. Related records are replaced by their ids.
type Entity map[string]any

// Graph maps entity type -> entity id -> entity.
type Graph map[string]map[string]Entity

// Result is the outcome of normalizing one record.
type Result struct {
	Kind  Kind
	ID    string // id of the top-level record
	Graph Graph
}

// Get returns the entity stored under entityType and id.
func (g Graph) Get(entityType, id string) (Entity, bool) {
	e, ok := g[entityType][id]
	return e, ok
}

// Len returns the number of entities across all types.
func (g Graph) Len() int {
	n := 0
	for _, byID := range g {
		n += len(byID)
	}
	return n
}

// Put merges e into the entity at entityType/id. Attributes of e overwrite
// existing attributes; attributes absent from e are kept.
func (g Graph) Put(entityType, id string, e Entity) {
	byID, ok := g[entityType]
	if !ok {
		byID = make(map[string]Entity)
		g[entityType] = byID
	}
	existing, ok := byID[id]
	if !ok {
		existing = make(Entity, len(e))
		byID[id] = existing
	}
	for k, v := range e {
		existing[k] = v
	}
}

// Normalize flattens node, a record of kind k, into a Graph.
func Normalize(k Kind, node map[string]any) (Result, error) {
	def, ok := k.Definition()
	if !ok {
		return Result{}, &UnknownSchemaError{Name: k.String()}
	}

	g := make(Graph)
	id, err := normalizeRecord(def, node, g)
	if err != nil {
		return Result{}, err
	}

	return Result{Kind: k, ID: id, Graph: g}, nil
}

func normalizeRecord(def Definition, node map[string]any, g Graph) (string, error) {
	id, err := recordID(node, def.IDAttribute)
	if err != nil {
		return "", fmt.Errorf("%s: %w", def.Kind, err)
	}

	entity := make(Entity, len(node))
	for k, v := range node {
		entity[k] = v
	}

	for _, rel := range def.Relations {
		value, ok := node[rel.Attribute]
		if !ok || value == nil {
			continue
		}
		target, _ := rel.Target.Definition()

		if rel.Many {
			items, ok := value.([]any)
			if !ok {
				return "", fmt.Errorf("%s.%s: expected array, got %T", def.Kind, rel.Attribute, value)
			}
			refs := make([]any, 0, len(items))
			for _, item := range items {
				ref, err := normalizeRef(target, item, g)
				if err != nil {
					return "", fmt.Errorf("%s.%s: %w", def.Kind, rel.Attribute, err)
				}
				refs = append(refs, ref)
			}
			entity[rel.Attribute] = refs
			continue
		}

		ref, err := normalizeRef(target, value, g)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", def.Kind, rel.Attribute, err)
		}
		entity[rel.Attribute] = ref
	}

	g.Put(def.Kind.String(), id, entity)
	return id, nil
}

// normalizeRef replaces an embedded record with its id. Values that are
// already references are kept as-is.
func normalizeRef(def Definition, value any, g Graph) (any, error) {
	nested, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}
	return normalizeRecord(def, nested, g)
}

func recordID(node map[string]any, attr string) (string, error) {
	if id, ok := idString(node[attr]); ok {
		return id, nil
	}
	if id, ok := idString(node[FallbackIDAttribute]); ok {
		return id, nil
	}
	return "", ErrMissingID
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	case int64:
		return strconv.FormatInt(id, 10), true
	}
	return "", false
}

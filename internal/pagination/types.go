package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rickgao/livesync/internal/protocol"
)

// Edge is one item of a page.
type Edge struct {
	ID     string          `json:"id"`
	Cursor protocol.Cursor `json:"cursor"`
}

// PageInfo bounds a page.
type PageInfo struct {
	StartCursor     protocol.Cursor `json:"startCursor"`
	EndCursor       protocol.Cursor `json:"endCursor"`
	HasNextPage     bool            `json:"hasNextPage"`
	HasPreviousPage bool            `json:"hasPreviousPage"`
}

// Page is the current state of one list view.
type Page struct {
	Edges    []Edge   `json:"edges"`
	PageInfo PageInfo `json:"pageInfo"`
}

// UpdateCursor locates the update relative to existing edges.
type UpdateCursor struct {
	Before protocol.Cursor `json:"before"`
}

// Update is a page fragment to merge into the list identified by
// Schema, Filter and Sort.
type Update struct {
	Schema    string             `json:"schema"`
	Filter    json.RawMessage    `json:"filter"`
	Sort      protocol.OrderSpec `json:"sort"`
	Direction protocol.Direction `json:"direction"`
	Cursor    UpdateCursor       `json:"cursor"`
	Edges     []Edge             `json:"edges"`
	IDs       []string           `json:"ids"`
	PageInfo  PageInfo           `json:"pageInfo"`
}

// Key identifies a list view.
type Key string

// KeyFor builds the key of the list for schemaName, filter and sort.
// Filters that differ only in key order or whitespace share a key; sort
// key order is significant.
func KeyFor(schemaName string, filter json.RawMessage, sort protocol.OrderSpec) (Key, error) {
	canonical, err := canonicalFilter(filter)
	if err != nil {
		return "", err
	}
	sortJSON, err := json.Marshal(sort)
	if err != nil {
		return "", fmt.Errorf("encode sort: %w", err)
	}
	return Key(schemaName + "|" + canonical + "|" + string(sortJSON)), nil
}

func canonicalFilter(filter json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(filter)) == 0 {
		return "{}", nil
	}
	var v any
	if err := json.Unmarshal(filter, &v); err != nil {
		return "", fmt.Errorf("decode filter: %w", err)
	}
	if v == nil {
		return "{}", nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode filter: %w", err)
	}
	return string(out), nil
}

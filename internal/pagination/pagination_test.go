package pagination

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/rickgao/livesync/internal/protocol"
	"github.com/rickgao/livesync/internal/schema"
)

var cur = protocol.StringCursor

func statementPush(id, cursor, before string) (protocol.Push, schema.Result) {
	push := protocol.Push{
		Schema: "statement",
		Node:   json.RawMessage(`{"_id":"` + id + `"}`),
		Cursor: cur(cursor),
		Before: cur(before),
	}
	res := schema.Result{Kind: schema.KindStatement, ID: id}
	return push, res
}

func TestInjector_Statement(t *testing.T) {
	inj := NewInjector()
	push, res := statementPush("abc", "c1", "c0")

	u, ok := inj.Inject(push, res)
	if !ok {
		t.Fatal("expected an update for statement")
	}

	if u.Schema != "statement" {
		t.Errorf("Schema = %q, want statement", u.Schema)
	}
	if u.Direction != protocol.Backward {
		t.Errorf("Direction = %q, want BACKWARD", u.Direction)
	}
	if len(u.Edges) != 1 || u.Edges[0] != (Edge{ID: "abc", Cursor: cur("c1")}) {
		t.Errorf("Edges = %+v, want [{abc c1}]", u.Edges)
	}
	if len(u.IDs) != 1 || u.IDs[0] != "abc" {
		t.Errorf("IDs = %v, want [abc]", u.IDs)
	}
	if u.Cursor.Before != cur("c0") {
		t.Errorf("Cursor.Before = %q, want c0", u.Cursor.Before)
	}
	want := PageInfo{StartCursor: cur("c1"), EndCursor: cur("c1"), HasNextPage: false, HasPreviousPage: true}
	if u.PageInfo != want {
		t.Errorf("PageInfo = %+v, want %+v", u.PageInfo, want)
	}
	if string(u.Filter) != `{}` {
		t.Errorf("Filter = %s, want {}", u.Filter)
	}

	sortJSON, _ := json.Marshal(u.Sort)
	if string(sortJSON) != `{"_id":1,"timestamp":-1}` {
		t.Errorf("Sort = %s", sortJSON)
	}
}

func TestInjector_KeepsOpaqueCursors(t *testing.T) {
	push, err := protocol.ParsePush([]byte(`{"schema":"statement","node":{"_id":"abc"},"cursor":{"ts":1,"id":"a"},"before":42}`))
	if err != nil {
		t.Fatalf("ParsePush failed: %v", err)
	}

	u, ok := NewInjector().Inject(push, schema.Result{Kind: schema.KindStatement, ID: "abc"})
	if !ok {
		t.Fatal("expected an update for statement")
	}

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, want := range []string{
		`"edges":[{"id":"abc","cursor":{"ts":1,"id":"a"}}]`,
		`"cursor":{"before":42}`,
		`"startCursor":{"ts":1,"id":"a"}`,
		`"endCursor":{"ts":1,"id":"a"}`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("update %s missing %s", data, want)
		}
	}
}

func TestInjector_OtherSchemaIgnored(t *testing.T) {
	inj := NewInjector()
	push := protocol.Push{Schema: "persona", Cursor: cur("c1")}

	if _, ok := inj.Inject(push, schema.Result{Kind: schema.KindPersona, ID: "p1"}); ok {
		t.Error("expected no update for persona")
	}
}

func TestInjector_CustomRule(t *testing.T) {
	inj := NewInjector(Rule{
		Kind:   schema.KindPersona,
		Filter: json.RawMessage(`{"org":"o1"}`),
		Sort:   protocol.OrderSpec{{Field: "name", Order: 1}},
	})

	u, ok := inj.Inject(protocol.Push{Cursor: cur("c9")}, schema.Result{Kind: schema.KindPersona, ID: "p1"})
	if !ok {
		t.Fatal("expected an update for persona")
	}
	if u.Schema != "persona" || string(u.Filter) != `{"org":"o1"}` {
		t.Errorf("update = %+v", u)
	}
	if _, ok := inj.Inject(protocol.Push{}, schema.Result{Kind: schema.KindStatement, ID: "s"}); ok {
		t.Error("custom rules replace the defaults")
	}
}

func TestKeyFor(t *testing.T) {
	sort := protocol.OrderSpec{{Field: "_id", Order: 1}}

	a, err := KeyFor("statement", json.RawMessage(`{"a":1, "b":2}`), sort)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := KeyFor("statement", json.RawMessage(`{"b":2,"a":1}`), sort)
	if a != b {
		t.Errorf("filter key order should not matter: %q vs %q", a, b)
	}

	empty, _ := KeyFor("statement", nil, sort)
	obj, _ := KeyFor("statement", json.RawMessage(`{}`), sort)
	null, _ := KeyFor("statement", json.RawMessage(`null`), sort)
	if empty != obj || obj != null {
		t.Errorf("empty filters should share a key: %q %q %q", empty, obj, null)
	}

	reversed, _ := KeyFor("statement", nil, protocol.OrderSpec{{Field: "timestamp", Order: -1}, {Field: "_id", Order: 1}})
	forward, _ := KeyFor("statement", nil, protocol.OrderSpec{{Field: "_id", Order: 1}, {Field: "timestamp", Order: -1}})
	if reversed == forward {
		t.Error("sort key order should matter")
	}

	if _, err := KeyFor("statement", json.RawMessage(`{bad`), sort); err == nil {
		t.Error("expected error for invalid filter")
	}
}

func TestStore_EmptyPageTakesUpdate(t *testing.T) {
	s := NewStore()
	push, res := statementPush("abc", "c1", "c0")
	u, _ := NewInjector().Inject(push, res)

	if err := s.ApplyUpdate(u); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	p, ok := s.Get("statement", nil, StatementSort)
	if !ok {
		t.Fatal("expected statement page")
	}
	if len(p.Edges) != 1 || p.Edges[0] != (Edge{ID: "abc", Cursor: cur("c1")}) {
		t.Errorf("Edges = %+v", p.Edges)
	}
	if p.PageInfo != u.PageInfo {
		t.Errorf("PageInfo = %+v, want %+v", p.PageInfo, u.PageInfo)
	}
	if s.Updates() != 1 || s.Len() != 1 {
		t.Errorf("Updates=%d Len=%d", s.Updates(), s.Len())
	}
}

func TestStore_BackwardPrependsAndBoundsCursors(t *testing.T) {
	s := NewStore()
	initial := Page{
		Edges: []Edge{{ID: "b", Cursor: cur("c2")}, {ID: "a", Cursor: cur("c1")}},
		PageInfo: PageInfo{
			StartCursor: cur("c2"),
			EndCursor:   cur("c1"),
			HasNextPage: true,
		},
	}
	if err := s.Set("statement", json.RawMessage(`{}`), StatementSort, initial); err != nil {
		t.Fatal(err)
	}

	inj := NewInjector()
	for _, p := range []struct{ id, cursor, before string }{
		{"c", "c3", "c2"},
		{"d", "c4", "c3"},
	} {
		push, res := statementPush(p.id, p.cursor, p.before)
		u, _ := inj.Inject(push, res)
		if err := s.ApplyUpdate(u); err != nil {
			t.Fatal(err)
		}
	}

	page, _ := s.Get("statement", nil, StatementSort)
	wantIDs := []string{"d", "c", "b", "a"}
	if len(page.Edges) != len(wantIDs) {
		t.Fatalf("Edges = %+v", page.Edges)
	}
	for i, id := range wantIDs {
		if page.Edges[i].ID != id {
			t.Errorf("edge %d = %s, want %s", i, page.Edges[i].ID, id)
		}
	}

	if page.PageInfo.StartCursor != page.Edges[0].Cursor {
		t.Errorf("StartCursor = %q, want first edge cursor %q", page.PageInfo.StartCursor, page.Edges[0].Cursor)
	}
	if page.PageInfo.EndCursor != page.Edges[len(page.Edges)-1].Cursor {
		t.Errorf("EndCursor = %q, want last edge cursor", page.PageInfo.EndCursor)
	}
	if !page.PageInfo.HasNextPage || !page.PageInfo.HasPreviousPage {
		t.Errorf("PageInfo = %+v", page.PageInfo)
	}
}

func TestStore_DuplicateIDMoves(t *testing.T) {
	s := NewStore()
	s.Set("statement", nil, StatementSort, Page{
		Edges:    []Edge{{ID: "a", Cursor: cur("c2")}, {ID: "b", Cursor: cur("c1")}},
		PageInfo: PageInfo{StartCursor: cur("c2"), EndCursor: cur("c1")},
	})

	push, res := statementPush("b", "c3", "c2")
	u, _ := NewInjector().Inject(push, res)
	s.ApplyUpdate(u)

	page, _ := s.Get("statement", nil, StatementSort)
	if len(page.Edges) != 2 || page.Edges[0].ID != "b" || page.Edges[1].ID != "a" {
		t.Errorf("Edges = %+v, want [b a]", page.Edges)
	}
}

func TestStore_ForwardAppends(t *testing.T) {
	s := NewStore()
	s.Set("statement", nil, StatementSort, Page{
		Edges:    []Edge{{ID: "a", Cursor: cur("c1")}},
		PageInfo: PageInfo{StartCursor: cur("c1"), EndCursor: cur("c1"), HasNextPage: true},
	})

	err := s.ApplyUpdate(Update{
		Schema:    "statement",
		Sort:      StatementSort,
		Direction: protocol.Forward,
		Edges:     []Edge{{ID: "b", Cursor: cur("c0")}},
		IDs:       []string{"b"},
		PageInfo:  PageInfo{StartCursor: cur("c0"), EndCursor: cur("c0"), HasNextPage: false},
	})
	if err != nil {
		t.Fatal(err)
	}

	page, _ := s.Get("statement", nil, StatementSort)
	if len(page.Edges) != 2 || page.Edges[1].ID != "b" {
		t.Errorf("Edges = %+v", page.Edges)
	}
	if page.PageInfo.StartCursor != cur("c1") || page.PageInfo.EndCursor != cur("c0") || page.PageInfo.HasNextPage {
		t.Errorf("PageInfo = %+v", page.PageInfo)
	}
}

func TestStore_InvalidUpdate(t *testing.T) {
	s := NewStore()

	if err := s.ApplyUpdate(Update{Schema: "statement", Direction: "SIDEWAYS"}); err == nil {
		t.Error("expected error for invalid direction")
	}
	if err := s.ApplyUpdate(Update{Schema: "statement", Direction: protocol.Backward, Filter: json.RawMessage(`[`)}); err == nil {
		t.Error("expected error for invalid filter")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Set("statement", nil, StatementSort, Page{Edges: []Edge{{ID: "a"}}})

	snap := s.Snapshot()
	for k := range snap {
		snap[k].Edges[0].ID = "mutated"
	}

	page, _ := s.Get("statement", nil, StatementSort)
	if page.Edges[0].ID != "a" {
		t.Error("snapshot aliased store edges")
	}
}

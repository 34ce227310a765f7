package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Message types.
const (
	TypeAuthenticate = "authenticate"
	TypeRegister     = "REGISTER"
)

// Direction is the paging direction of a live query.
type Direction string

const (
	Forward  Direction = "FORWARD"
	Backward Direction = "BACKWARD"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == Forward || d == Backward
}

// Cursor is an opaque position token in an ordered result set. It holds the
// token's JSON text verbatim, so numbers, objects and empty strings are sent
// back exactly as received. The zero value is the JSON null cursor.
type Cursor string

var jsonNull = []byte("null")

// StringCursor returns the cursor for the JSON string s.
func StringCursor(s string) Cursor {
	data, _ := json.Marshal(s)
	return Cursor(data)
}

// ParseCursor returns the cursor whose JSON text is data. Empty input and
// null give the zero cursor.
func ParseCursor(data []byte) (Cursor, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, jsonNull) {
		return "", nil
	}
	if !json.Valid(data) {
		return "", fmt.Errorf("invalid cursor %q", data)
	}
	return Cursor(data), nil
}

// IsNull reports whether c is the null cursor.
func (c Cursor) IsNull() bool {
	return c == ""
}

// Raw returns the JSON text of c.
func (c Cursor) Raw() json.RawMessage {
	if c == "" {
		return json.RawMessage(jsonNull)
	}
	return json.RawMessage(c)
}

// String returns the decoded value of a string cursor and the JSON text of
// any other cursor.
func (c Cursor) String() string {
	var s string
	if c != "" && c[0] == '"' && json.Unmarshal([]byte(c), &s) == nil {
		return s
	}
	return string(c.Raw())
}

// MarshalJSON implements json.Marshaler.
func (c Cursor) MarshalJSON() ([]byte, error) {
	return []byte(c.Raw()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Cursor) UnmarshalJSON(data []byte) error {
	parsed, err := ParseCursor(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// SortField is one key of an ordering: 1 ascending, -1 descending.
type SortField struct {
	Field string `yaml:"field"`
	Order int    `yaml:"order"`
}

// OrderSpec is an ordered list of sort keys. It encodes as a JSON object
// whose key order matches the slice order, e.g. {"_id":1,"timestamp":-1}.
type OrderSpec []SortField

// MarshalJSON implements json.Marshaler.
func (o OrderSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(f.Order))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping key order.
func (o *OrderSpec) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("sort must be a JSON object")
	}

	var out OrderSpec
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)

		var order int
		if err := dec.Decode(&order); err != nil {
			return fmt.Errorf("sort field %q: %w", key, err)
		}
		out = append(out, SortField{Field: key, Order: order})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*o = out
	return nil
}

// Descriptor is a live query a view wants kept current.
type Descriptor struct {
	Schema    string          `json:"schema"`
	Filter    json.RawMessage `json:"filter"`
	Sort      OrderSpec       `json:"sort"`
	Direction Direction       `json:"direction"`
	Cursor    Cursor          `json:"cursor"` // start cursor the query pages away from
}

// Authenticate is the first frame sent on a new connection.
type Authenticate struct {
	Type  string            `json:"type"`
	Value map[string]string `json:"value"`
}

// NewAuthenticate builds an authenticate frame. A nil credential set is sent
// as an empty object.
func NewAuthenticate(creds map[string]string) Authenticate {
	if creds == nil {
		creds = map[string]string{}
	}
	return Authenticate{Type: TypeAuthenticate, Value: creds}
}

// Register asks the server to start pushing updates for a live query.
type Register struct {
	Type           string            `json:"type"`
	OrganisationID string            `json:"organisationId,omitempty"`
	Auth           map[string]string `json:"auth"`
	Schema         string            `json:"schema"`
	Filter         json.RawMessage   `json:"filter"`
	Sort           OrderSpec         `json:"sort"`
	Direction      Direction         `json:"direction"`
	Cursor         Cursor            `json:"cursor"`
}

// NewRegister echoes a descriptor into a REGISTER frame.
func NewRegister(organisationID string, auth map[string]string, d Descriptor) Register {
	if auth == nil {
		auth = map[string]string{}
	}
	filter := d.Filter
	if len(bytes.TrimSpace(filter)) == 0 {
		filter = json.RawMessage(`{}`)
	}
	return Register{
		Type:           TypeRegister,
		OrganisationID: organisationID,
		Auth:           auth,
		Schema:         d.Schema,
		Filter:         filter,
		Sort:           d.Sort,
		Direction:      d.Direction,
		Cursor:         d.Cursor,
	}
}

// Push is one server-originated entity create/update event.
type Push struct {
	Schema string          `json:"schema"`
	Node   json.RawMessage `json:"node"`
	Cursor Cursor          `json:"cursor"`
	Before Cursor          `json:"before"`
}

// ParsePush decodes a push frame.
func ParsePush(data []byte) (Push, error) {
	var p Push
	if err := json.Unmarshal(data, &p); err != nil {
		return Push{}, err
	}
	return p, nil
}

// DecodeNode decodes the push node as a JSON object. Numbers are kept as
// json.Number so ids and counters survive without float rounding.
func (p Push) DecodeNode() (map[string]any, error) {
	if len(bytes.TrimSpace(p.Node)) == 0 {
		return nil, errors.New("push has no node")
	}
	dec := json.NewDecoder(bytes.NewReader(p.Node))
	dec.UseNumber()

	var node map[string]any
	if err := dec.Decode(&node); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if node == nil {
		return nil, errors.New("push node is null")
	}
	return node, nil
}

package program

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type FieldKind int

const (
	FieldNumber FieldKind = iota + 1
	FieldText
	FieldVariable
)

// FieldValue is one field literal as the editor serialized it: a number,
// a text/enum token, or a reference to a registered variable.
type FieldValue struct {
	Kind FieldKind

	Number json.Number
	Text   string

	VarID   string
	VarName string
}

func Number(n string) FieldValue { return FieldValue{Kind: FieldNumber, Number: json.Number(n)} }
func Text(s string) FieldValue   { return FieldValue{Kind: FieldText, Text: s} }
func VarRef(id string) FieldValue {
	return FieldValue{Kind: FieldVariable, VarID: id}
}

type varRefJSON struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

func (f *FieldValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty field value")
	}
	switch b[0] {
	case 'n':
		*f = FieldValue{}
	case '{':
		var ref varRefJSON
		if err := json.Unmarshal(b, &ref); err != nil {
			return err
		}
		*f = FieldValue{Kind: FieldVariable, VarID: ref.ID, VarName: ref.Name}
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FieldValue{Kind: FieldText, Text: s}
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s := "FALSE"
		if v {
			s = "TRUE"
		}
		*f = FieldValue{Kind: FieldText, Text: s}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("field value: %w", err)
		}
		*f = FieldValue{Kind: FieldNumber, Number: n}
	}
	return nil
}

func (f FieldValue) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case FieldNumber:
		return []byte(f.Number.String()), nil
	case FieldText:
		return json.Marshal(f.Text)
	case FieldVariable:
		return json.Marshal(varRefJSON{ID: f.VarID, Name: f.VarName})
	default:
		return []byte("null"), nil
	}
}

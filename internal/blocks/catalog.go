package blocks

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
)

// Argument types understood by the editor.
const (
	ArgNumber   = "field_number"
	ArgAngle    = "field_angle"
	ArgDropdown = "field_dropdown"
	ArgVariable = "field_variable"
)

// DefaultVariable is the variable a freshly placed position block binds to.
const DefaultVariable = "pos1"

var ErrInvalidCatalog = errors.New("invalid block catalog")

// Def is one entry of the editor's defineBlocksWithJsonArray payload.
type Def struct {
	Type              string          `json:"type"`
	Message0          string          `json:"message0"`
	Args0             []Arg           `json:"args0,omitempty"`
	PreviousStatement json.RawMessage `json:"previousStatement,omitempty"`
	NextStatement     json.RawMessage `json:"nextStatement,omitempty"`
	Output            json.RawMessage `json:"output,omitempty"`
	Colour            int             `json:"colour"`
	Tooltip           string          `json:"tooltip"`
	HelpURL           string          `json:"helpUrl"`
}

type Arg struct {
	Type     string      `json:"type"`
	Name     string      `json:"name"`
	Value    *float64    `json:"value,omitempty"`
	Angle    *float64    `json:"angle,omitempty"`
	Options  [][2]string `json:"options,omitempty"`
	Variable string      `json:"variable,omitempty"`
}

// Arg looks up the argument declaring field name.
func (d Def) Arg(name string) (Arg, bool) {
	for _, a := range d.Args0 {
		if a.Name == name {
			return a, true
		}
	}
	return Arg{}, false
}

// Catalog holds one definition per robot kind.
type Catalog struct {
	Defs   map[Kind]Def
	Digest string
}

func (c *Catalog) Def(k Kind) (Def, bool) {
	d, ok := c.Defs[k]
	return d, ok
}

// Has reports whether typ names a kind defined by this catalog.
func (c *Catalog) Has(typ string) bool {
	k, ok := ParseKind(typ)
	if !ok {
		return false
	}
	_, ok = c.Defs[k]
	return ok
}

// List returns the definitions in catalog order.
func (c *Catalog) List() []Def {
	out := make([]Def, 0, len(c.Defs))
	for _, k := range allKinds {
		if d, ok := c.Defs[k]; ok {
			out = append(out, d)
		}
	}
	return out
}

// MarshalEditorJSON renders the catalog as the JSON array the editor
// registers its custom blocks from.
func (c *Catalog) MarshalEditorJSON() ([]byte, error) {
	return json.Marshal(c.List())
}

// Load reads a blocks.json override from fsys. The file must define every
// robot kind exactly once with the kind's field set.
func Load(fsys fs.FS, name string) (*Catalog, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var defs []Def
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, err
	}
	c := &Catalog{Defs: map[Kind]Def{}, Digest: sha256Hex(raw)}
	for _, d := range defs {
		k, ok := ParseKind(d.Type)
		if !ok {
			return nil, fmt.Errorf("%w: unknown block type %q", ErrInvalidCatalog, d.Type)
		}
		if _, dup := c.Defs[k]; dup {
			return nil, fmt.Errorf("%w: duplicate block type %q", ErrInvalidCatalog, d.Type)
		}
		if err := validateDef(k, d); err != nil {
			return nil, err
		}
		c.Defs[k] = d
	}
	for _, k := range allKinds {
		if _, ok := c.Defs[k]; !ok {
			return nil, fmt.Errorf("%w: missing block type %q", ErrInvalidCatalog, k)
		}
	}
	return c, nil
}

func validateDef(k Kind, d Def) error {
	if len(d.PreviousStatement) == 0 || len(d.NextStatement) == 0 {
		return fmt.Errorf("%w: %s must connect above and below", ErrInvalidCatalog, k)
	}
	if len(d.Output) != 0 {
		return fmt.Errorf("%w: %s must not produce a value", ErrInvalidCatalog, k)
	}

	want := k.Fields()
	got := make([]string, 0, len(d.Args0))
	for _, a := range d.Args0 {
		got = append(got, a.Name)
	}
	if !sameSet(want, got) {
		return fmt.Errorf("%w: %s fields %v, want %v", ErrInvalidCatalog, k, got, want)
	}

	for _, a := range d.Args0 {
		switch a.Name {
		case "JOINT":
			if a.Type != ArgDropdown {
				return fmt.Errorf("%w: %s.JOINT must be a dropdown", ErrInvalidCatalog, k)
			}
			tokens := make([]string, 0, len(a.Options))
			for _, o := range a.Options {
				tokens = append(tokens, o[1])
			}
			if !sameSet(joints, tokens) {
				return fmt.Errorf("%w: %s.JOINT tokens %v, want %v", ErrInvalidCatalog, k, tokens, joints)
			}
		case "POS":
			if a.Type != ArgVariable {
				return fmt.Errorf("%w: %s.POS must be a variable field", ErrInvalidCatalog, k)
			}
		default:
			if a.Type != ArgNumber && a.Type != ArgAngle {
				return fmt.Errorf("%w: %s.%s must be numeric", ErrInvalidCatalog, k, a.Name)
			}
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Package toolbox holds the editor's categorized block menu.
package toolbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
)

const (
	KindCategoryToolbox = "categoryToolbox"
	KindCategory        = "category"
	KindBlock           = "block"

	CustomVariable  = "VARIABLE"
	CustomProcedure = "PROCEDURE"
)

var ErrInvalidToolbox = errors.New("invalid toolbox")

type Item struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
}

// Category is one menu entry. Custom categories are filled by the editor
// (variables, procedures) and carry no items of their own.
type Category struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Colour   string `json:"colour"`
	Custom   string `json:"custom,omitempty"`
	Contents []Item `json:"contents,omitempty"`
}

type Toolbox struct {
	Kind     string     `json:"kind"`
	Contents []Category `json:"contents"`

	Digest string `json:"-"`
}

func category(name, colour string, types ...string) Category {
	c := Category{Kind: KindCategory, Name: name, Colour: colour}
	for _, t := range types {
		c.Contents = append(c.Contents, Item{Kind: KindBlock, Type: t})
	}
	return c
}

func custom(name, colour, which string) Category {
	return Category{Kind: KindCategory, Name: name, Colour: colour, Custom: which}
}

// Default returns the layout the editor ships with.
func Default() *Toolbox {
	t := &Toolbox{
		Kind: KindCategoryToolbox,
		Contents: []Category{
			category("Movement", "#5C81A6", "robot_move", "robot_rotate", "robot_set_angle", "robot_set_all_angles"),
			category("Positions", "#5CA699", "robot_record_position", "robot_move_to_recorded"),
			category("Gripper", "#A65C81", "robot_grip", "robot_release"),
			category("Control", "#5CA65C", "controls_if", "controls_repeat_ext"),
			category("Logic", "#5C68A6", "logic_compare", "logic_boolean"),
			category("Math", "#A6745C", "math_number", "math_arithmetic"),
			custom("Variables", "#5CA6A6", CustomVariable),
			custom("Functions", "#A65C5C", CustomProcedure),
		},
	}
	t.Digest = digest(t)
	return t
}

// Load reads a toolbox.json override from fsys.
func Load(fsys fs.FS, name string) (*Toolbox, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	var t Toolbox
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidToolbox, name, err)
	}
	if t.Kind == "" {
		t.Kind = KindCategoryToolbox
	}
	for i := range t.Contents {
		c := &t.Contents[i]
		if c.Kind == "" {
			c.Kind = KindCategory
		}
		for j := range c.Contents {
			if c.Contents[j].Kind == "" {
				c.Contents[j].Kind = KindBlock
			}
		}
	}
	t.Digest = digest(&t)
	return &t, nil
}

// Validate checks the layout's shape and that every listed block type is
// one known reports as generatable.
func (t *Toolbox) Validate(known func(string) bool) error {
	if t.Kind != KindCategoryToolbox {
		return fmt.Errorf("%w: kind %q", ErrInvalidToolbox, t.Kind)
	}
	if len(t.Contents) == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalidToolbox)
	}
	seen := map[string]bool{}
	for _, c := range t.Contents {
		if c.Kind != KindCategory || c.Name == "" {
			return fmt.Errorf("%w: bad category %+v", ErrInvalidToolbox, c)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidToolbox, c.Name)
		}
		seen[c.Name] = true
		switch c.Custom {
		case "":
		case CustomVariable, CustomProcedure:
			if len(c.Contents) > 0 {
				return fmt.Errorf("%w: custom category %q lists blocks", ErrInvalidToolbox, c.Name)
			}
			continue
		default:
			return fmt.Errorf("%w: category %q: unknown custom %q", ErrInvalidToolbox, c.Name, c.Custom)
		}
		for _, it := range c.Contents {
			if it.Kind != KindBlock {
				return fmt.Errorf("%w: category %q: item kind %q", ErrInvalidToolbox, c.Name, it.Kind)
			}
			if known != nil && !known(it.Type) {
				return fmt.Errorf("%w: category %q: unknown block type %q", ErrInvalidToolbox, c.Name, it.Type)
			}
		}
	}
	return nil
}

// BlockTypes lists every block type the layout offers, in menu order.
func (t *Toolbox) BlockTypes() []string {
	var out []string
	for _, c := range t.Contents {
		for _, it := range c.Contents {
			out = append(out, it.Type)
		}
	}
	return out
}

type xmlBlock struct {
	Type string `xml:"type,attr"`
}

type xmlCategory struct {
	Name   string     `xml:"name,attr"`
	Custom string     `xml:"custom,attr,omitempty"`
	Colour string     `xml:"colour,attr"`
	Blocks []xmlBlock `xml:"block"`
}

type xmlToolbox struct {
	XMLName    xml.Name      `xml:"xml"`
	ID         string        `xml:"id,attr"`
	Style      string        `xml:"style,attr"`
	Categories []xmlCategory `xml:"category"`
}

// MarshalXML renders the legacy XML toolbox form.
func (t Toolbox) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	out := xmlToolbox{ID: "toolbox", Style: "display: none"}
	for _, c := range t.Contents {
		xc := xmlCategory{Name: c.Name, Custom: c.Custom, Colour: c.Colour}
		for _, it := range c.Contents {
			xc.Blocks = append(xc.Blocks, xmlBlock{Type: it.Type})
		}
		out.Categories = append(out.Categories, xc)
	}
	return e.Encode(out)
}

// XML returns the indented XML form.
func (t *Toolbox) XML() ([]byte, error) {
	return xml.MarshalIndent(*t, "", "  ")
}

func digest(t *Toolbox) string {
	raw, _ := json.Marshal(t)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

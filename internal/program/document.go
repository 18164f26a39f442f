package program

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrBadWorkspace    = errors.New("bad workspace")
	ErrUnknownVariable = errors.New("unknown variable")
)

// Block is one block instance of the user's program. Inputs holds both
// value and statement inputs; Next is the block below this one.
type Block struct {
	Type    string
	ID      string
	X, Y    float64
	Enabled bool

	Fields     map[string]FieldValue
	Inputs     map[string]*Block
	Next       *Block
	ExtraState json.RawMessage
}

// Field returns the named field and whether the editor serialized it.
func (b *Block) Field(name string) (FieldValue, bool) {
	if b == nil {
		return FieldValue{}, false
	}
	v, ok := b.Fields[name]
	if !ok || v.Kind == 0 {
		return FieldValue{}, false
	}
	return v, true
}

func (b *Block) Input(name string) *Block {
	if b == nil {
		return nil
	}
	return b.Inputs[name]
}

type Variable struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Document is the program owned by one editor: its top-level stacks in
// program order and the variable registry. A Document is read-only once
// decoded.
type Document struct {
	Blocks    []*Block
	Variables []Variable

	byID   map[string]int
	byName map[string]int
}

// Empty returns a document with no blocks and no variables.
func Empty() *Document {
	return &Document{byID: map[string]int{}, byName: map[string]int{}}
}

// New builds a document from already constructed blocks. Top-level stacks
// are put into program order; variable references are checked against vars.
func New(top []*Block, vars []Variable) (*Document, error) {
	d := Empty()
	for _, v := range vars {
		if err := d.addVariable(v); err != nil {
			return nil, err
		}
	}
	d.Blocks = append(d.Blocks, top...)
	if err := d.bindVariables(); err != nil {
		return nil, err
	}
	sortTopBlocks(d.Blocks)
	return d, nil
}

func (d *Document) IsEmpty() bool { return d == nil || len(d.Blocks) == 0 }

// Variable resolves a variable field against the registry, by id first
// and by name second.
func (d *Document) Variable(ref FieldValue) (Variable, bool) {
	if d == nil || ref.Kind != FieldVariable {
		return Variable{}, false
	}
	if ref.VarID != "" {
		if i, ok := d.byID[ref.VarID]; ok {
			return d.Variables[i], true
		}
	}
	if ref.VarName != "" {
		if i, ok := d.byName[strings.ToLower(ref.VarName)]; ok {
			return d.Variables[i], true
		}
	}
	return Variable{}, false
}

// Walk visits every block reachable from the top-level stacks, depth first,
// inputs before the next block. Input names are visited in sorted order.
func (d *Document) Walk(fn func(*Block)) {
	if d == nil {
		return
	}
	for _, b := range d.Blocks {
		walk(b, fn)
	}
}

func walk(b *Block, fn func(*Block)) {
	for ; b != nil; b = b.Next {
		fn(b)
		names := make([]string, 0, len(b.Inputs))
		for name := range b.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			walk(b.Inputs[name], fn)
		}
	}
}

func (d *Document) addVariable(v Variable) error {
	if v.ID == "" {
		v.ID = v.Name
	}
	if strings.TrimSpace(v.Name) == "" {
		return fmt.Errorf("%w: variable %q has no name", ErrBadWorkspace, v.ID)
	}
	if _, dup := d.byID[v.ID]; dup {
		return fmt.Errorf("%w: duplicate variable id %q", ErrBadWorkspace, v.ID)
	}
	d.byID[v.ID] = len(d.Variables)
	if _, ok := d.byName[strings.ToLower(v.Name)]; !ok {
		d.byName[strings.ToLower(v.Name)] = len(d.Variables)
	}
	d.Variables = append(d.Variables, v)
	return nil
}

// bindVariables checks every variable field. A reference carrying a name
// that is not yet registered registers it, as the editor does on load; a
// bare unknown id is an error.
func (d *Document) bindVariables() error {
	var err error
	d.Walk(func(b *Block) {
		if err != nil {
			return
		}
		for name, f := range b.Fields {
			if f.Kind != FieldVariable {
				continue
			}
			if _, ok := d.Variable(f); ok {
				continue
			}
			if f.VarName == "" {
				err = fmt.Errorf("%w: %s.%s references %q", ErrUnknownVariable, b.Type, name, f.VarID)
				return
			}
			if e := d.addVariable(Variable{ID: f.VarID, Name: f.VarName}); e != nil {
				err = e
				return
			}
		}
	})
	return err
}

// scanSlope is sin(3°): stacks are read along a line tilted slightly
// downward to the right, the editor's reading order for LTR workspaces.
const scanSlope = 0.05233595624294383

// sortTopBlocks orders stacks by y + x·sin(3°); equal keys keep document order.
func sortTopBlocks(bs []*Block) {
	key := func(b *Block) float64 { return b.Y + scanSlope*b.X }
	sort.SliceStable(bs, func(i, j int) bool { return key(bs[i]) < key(bs[j]) })
}

// Package emit turns a program document into target-language text, one
// line per robot block, plus the control, logic, math, variable and
// procedure blocks the editor's toolbox provides.
package emit

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"roboblocks/internal/blocks"
	"roboblocks/internal/program"
)

var (
	ErrUnknownKind  = errors.New("unknown block kind")
	ErrNotStatement = errors.New("block is not a statement")
)

const (
	indent = "  "
	pass   = indent + "pass\n"
)

type Emitter struct {
	catalog *blocks.Catalog
}

// New returns an emitter reading field defaults from c (the builtin
// catalog when c is nil).
func New(c *blocks.Catalog) *Emitter {
	if c == nil {
		c = blocks.Builtin()
	}
	return &Emitter{catalog: c}
}

func (e *Emitter) Catalog() *blocks.Catalog { return e.catalog }

// Supports reports whether blocks of type typ can be generated.
func (e *Emitter) Supports(typ string) bool {
	return e.catalog.Has(typ) || IsLibraryKind(typ)
}

// Program linearizes doc. Procedure definitions come first, then every
// top-level stack in program order, stacks separated by a blank line.
func (e *Emitter) Program(doc *program.Document) (string, error) {
	if doc.IsEmpty() {
		return "", nil
	}
	g := e.newGen(doc)
	var stacks []string
	for _, b := range doc.Blocks {
		code, err := g.topLevel(b)
		if err != nil {
			return "", err
		}
		if code != "" {
			stacks = append(stacks, code)
		}
	}
	return g.finish(strings.Join(stacks, "\n")), nil
}

// Block emits the code of b alone, without the blocks below it.
func (e *Emitter) Block(doc *program.Document, b *program.Block) (string, error) {
	if doc == nil {
		doc = program.Empty()
	}
	return e.newGen(doc).statement(b)
}

type definition struct {
	key  string
	code string
}

// gen carries the per-emission name table and collected definitions.
type gen struct {
	e     *Emitter
	doc   *program.Document
	names *names

	defs     []definition
	defIndex map[string]int
}

func (e *Emitter) newGen(doc *program.Document) *gen {
	g := &gen{
		e:        e,
		doc:      doc,
		names:    newNames(),
		defIndex: map[string]int{},
	}
	for _, v := range doc.Variables {
		g.names.get(v.Name, nameVariable)
	}
	doc.Walk(func(b *program.Block) {
		if b.Type == "procedures_defnoreturn" || b.Type == "procedures_defreturn" {
			if f, ok := b.Field("NAME"); ok {
				g.names.get(f.Text, nameProcedure)
			}
		}
	})
	return g
}

func (g *gen) define(key, code string) {
	if i, ok := g.defIndex[key]; ok {
		g.defs[i].code = code
		return
	}
	g.defIndex[key] = len(g.defs)
	g.defs = append(g.defs, definition{key: key, code: code})
}

func (g *gen) topLevel(b *program.Block) (string, error) {
	if isValueKind(b.Type) {
		if !b.Enabled {
			return "", nil
		}
		code, _, err := g.expr(b)
		if err != nil || code == "" {
			return "", err
		}
		return code + "\n", nil
	}
	return g.stack(b)
}

// stack emits b and every block below it, skipping disabled ones.
func (g *gen) stack(b *program.Block) (string, error) {
	var sb strings.Builder
	for cur := b; cur != nil; cur = cur.Next {
		if !cur.Enabled {
			continue
		}
		code, err := g.statement(cur)
		if err != nil {
			return "", err
		}
		sb.WriteString(code)
	}
	return sb.String(), nil
}

func (g *gen) statement(b *program.Block) (string, error) {
	if b == nil {
		return "", nil
	}
	if k, ok := blocks.ParseKind(b.Type); ok {
		return g.robot(k, b)
	}
	if isValueKind(b.Type) {
		return "", fmt.Errorf("%w: %s (block %s)", ErrNotStatement, b.Type, b.ID)
	}
	return g.library(b)
}

// robot is the closed match over the robot kinds. Each line depends only
// on the block's own fields.
func (g *gen) robot(k blocks.Kind, b *program.Block) (string, error) {
	switch k {
	case blocks.KindMove:
		return fmt.Sprintf("move_to(%s, %s, %s)\n", g.num(k, b, "X"), g.num(k, b, "Y"), g.num(k, b, "Z")), nil
	case blocks.KindRotate:
		return fmt.Sprintf("rotate(\"%s\", %s)\n", g.joint(k, b), g.num(k, b, "ANGLE")), nil
	case blocks.KindSetAngle:
		return fmt.Sprintf("set_angle(\"%s\", %s)\n", g.joint(k, b), g.num(k, b, "ANGLE")), nil
	case blocks.KindSetAllAngles:
		return fmt.Sprintf("set_all_angles(%s, %s, %s, %s)\n",
			g.num(k, b, "BASE"), g.num(k, b, "SHOULDER"), g.num(k, b, "ELBOW"), g.num(k, b, "WRIST")), nil
	case blocks.KindRecordPosition:
		return g.variable(k, b, "POS") + " = record_position()\n", nil
	case blocks.KindMoveToRecorded:
		return "move_to_recorded(" + g.variable(k, b, "POS") + ")\n", nil
	case blocks.KindGrip:
		return "grip()\n", nil
	case blocks.KindRelease:
		return "release()\n", nil
	default:
		return "", fmt.Errorf("%w: %s (block %s)", ErrUnknownKind, b.Type, b.ID)
	}
}

func (g *gen) arg(k blocks.Kind, field string) blocks.Arg {
	d, _ := g.e.catalog.Def(k)
	a, _ := d.Arg(field)
	return a
}

// num renders a numeric field, falling back to the catalog default.
func (g *gen) num(k blocks.Kind, b *program.Block, field string) string {
	if v, ok := b.Field(field); ok {
		return numberText(v)
	}
	a := g.arg(k, field)
	switch {
	case a.Value != nil:
		return formatNumber(*a.Value)
	case a.Angle != nil:
		return formatNumber(*a.Angle)
	}
	return "0"
}

func (g *gen) joint(k blocks.Kind, b *program.Block) string {
	if v, ok := b.Field("JOINT"); ok && v.Kind == program.FieldText {
		return strings.ToLower(v.Text)
	}
	if a := g.arg(k, "JOINT"); len(a.Options) > 0 {
		return strings.ToLower(a.Options[0][1])
	}
	return strings.ToLower(blocks.JointBase)
}

func (g *gen) variable(k blocks.Kind, b *program.Block, field string) string {
	if v, ok := b.Field(field); ok {
		if name, ok := g.varName(v); ok {
			return name
		}
	}
	def := g.arg(k, field).Variable
	if def == "" {
		def = blocks.DefaultVariable
	}
	return g.names.get(def, nameVariable)
}

// varName resolves a variable field to its identifier. Text fields
// carry the variable name directly.
func (g *gen) varName(v program.FieldValue) (string, bool) {
	if vv, ok := g.doc.Variable(v); ok {
		return g.names.get(vv.Name, nameVariable), true
	}
	switch {
	case v.Kind == program.FieldVariable && v.VarName != "":
		return g.names.get(v.VarName, nameVariable), true
	case v.Kind == program.FieldText && v.Text != "":
		return g.names.get(v.Text, nameVariable), true
	}
	return "", false
}

var (
	importLine    = regexp.MustCompile(`^(from\s+\S+\s+)?import\s+\S+`)
	multiBlank    = regexp.MustCompile(`\n\n+`)
	leadingBlank  = regexp.MustCompile(`^\s+\n`)
	trailingBlank = regexp.MustCompile(`\n\s+$`)
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
)

// finish puts imports and definitions ahead of code and normalizes blank
// lines and trailing whitespace.
func (g *gen) finish(code string) string {
	if len(g.defs) > 0 {
		var imports, defs []string
		for _, d := range g.defs {
			if importLine.MatchString(d.code) {
				imports = append(imports, d.code)
			} else {
				defs = append(defs, d.code)
			}
		}
		all := strings.Join(imports, "\n") + "\n\n" + strings.Join(defs, "\n\n")
		all = multiBlank.ReplaceAllString(all, "\n\n")
		code = strings.TrimRight(all, "\n") + "\n\n\n" + code
	}
	code = leadingBlank.ReplaceAllString(code, "")
	code = trailingBlank.ReplaceAllString(code, "\n")
	code = trailingSpace.ReplaceAllString(code, "\n")
	return code
}

// prefixLines indents every line of text; a final newline stays bare.
func prefixLines(text, prefix string) string {
	if text == "" {
		return ""
	}
	body, nl := strings.CutSuffix(text, "\n")
	out := prefix + strings.ReplaceAll(body, "\n", "\n"+prefix)
	if nl {
		out += "\n"
	}
	return out
}

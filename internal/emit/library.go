package emit

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"roboblocks/internal/program"
)

// Operator precedence of generated expressions; lower binds tighter.
type order float64

const (
	orderAtomic         order = 0
	orderMember         order = 2.1
	orderFunctionCall   order = 2.2
	orderExponentiation order = 3
	orderUnarySign      order = 4
	orderMultiplicative order = 5
	orderAdditive       order = 6
	orderRelational     order = 11
	orderLogicalNot     order = 12
	orderLogicalAnd     order = 13
	orderLogicalOr      order = 14
	orderNone           order = 99
)

// Same-precedence pairs that never need parentheses.
var orderOverrides = [][2]order{
	{orderFunctionCall, orderMember},
	{orderFunctionCall, orderFunctionCall},
	{orderMember, orderMember},
	{orderMember, orderFunctionCall},
	{orderLogicalNot, orderLogicalNot},
	{orderLogicalAnd, orderLogicalAnd},
	{orderLogicalOr, orderLogicalOr},
}

var valueKinds = map[string]struct{}{
	"logic_boolean":         {},
	"logic_compare":         {},
	"logic_operation":       {},
	"logic_negate":          {},
	"logic_null":            {},
	"math_number":           {},
	"math_arithmetic":       {},
	"variables_get":         {},
	"procedures_callreturn": {},
}

var statementKinds = map[string]struct{}{
	"controls_if":             {},
	"controls_ifelse":         {},
	"controls_repeat":         {},
	"controls_repeat_ext":     {},
	"variables_set":           {},
	"math_change":             {},
	"procedures_defnoreturn":  {},
	"procedures_defreturn":    {},
	"procedures_callnoreturn": {},
	"procedures_ifreturn":     {},
}

func isValueKind(typ string) bool {
	_, ok := valueKinds[typ]
	return ok
}

// IsLibraryKind reports whether typ is one of the editor's standard
// control, logic, math, variable or procedure blocks.
func IsLibraryKind(typ string) bool {
	if _, ok := statementKinds[typ]; ok {
		return true
	}
	return isValueKind(typ)
}

// LibraryKinds lists the standard block types the emitter generates, sorted.
func LibraryKinds() []string {
	out := make([]string, 0, len(valueKinds)+len(statementKinds))
	for k := range valueKinds {
		out = append(out, k)
	}
	for k := range statementKinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g *gen) library(b *program.Block) (string, error) {
	switch b.Type {
	case "controls_if", "controls_ifelse":
		return g.controlsIf(b)
	case "controls_repeat", "controls_repeat_ext":
		return g.controlsRepeat(b)
	case "variables_set":
		v, err := g.value(b, "VALUE", orderNone)
		if err != nil {
			return "", err
		}
		if v == "" {
			v = "0"
		}
		return g.fieldVar(b, "VAR") + " = " + v + "\n", nil
	case "math_change":
		g.define("from_numbers_import_Number", "from numbers import Number")
		delta, err := g.value(b, "DELTA", orderAdditive)
		if err != nil {
			return "", err
		}
		if delta == "" {
			delta = "0"
		}
		name := g.fieldVar(b, "VAR")
		return fmt.Sprintf("%s = (%s if isinstance(%s, Number) else 0) + %s\n", name, name, name, delta), nil
	case "procedures_defnoreturn", "procedures_defreturn":
		return "", g.procedureDef(b)
	case "procedures_callnoreturn":
		call, err := g.procedureCall(b)
		if err != nil {
			return "", err
		}
		return call + "\n", nil
	case "procedures_ifreturn":
		return g.ifReturn(b)
	default:
		return "", fmt.Errorf("%w: %s (block %s)", ErrUnknownKind, b.Type, b.ID)
	}
}

// expr generates a value block and the precedence of its outermost operator.
func (g *gen) expr(b *program.Block) (string, order, error) {
	switch b.Type {
	case "logic_boolean":
		if f, _ := b.Field("BOOL"); f.Text == "TRUE" {
			return "True", orderAtomic, nil
		}
		return "False", orderAtomic, nil
	case "logic_null":
		return "None", orderAtomic, nil
	case "logic_compare":
		op, ok := compareOps[fieldText(b, "OP")]
		if !ok {
			op = "=="
		}
		return g.binary(b, " "+op+" ", orderRelational, "0", "0")
	case "logic_operation":
		op, ord := "and", orderLogicalAnd
		if fieldText(b, "OP") == "OR" {
			op, ord = "or", orderLogicalOr
		}
		a, err := g.value(b, "A", ord)
		if err != nil {
			return "", 0, err
		}
		c, err := g.value(b, "B", ord)
		if err != nil {
			return "", 0, err
		}
		switch {
		case a == "" && c == "":
			a, c = "False", "False"
		case a == "" || c == "":
			def := "True"
			if op == "or" {
				def = "False"
			}
			if a == "" {
				a = def
			}
			if c == "" {
				c = def
			}
		}
		return a + " " + op + " " + c, ord, nil
	case "logic_negate":
		v, err := g.value(b, "BOOL", orderLogicalNot)
		if err != nil {
			return "", 0, err
		}
		if v == "" {
			v = "True"
		}
		return "not " + v, orderLogicalNot, nil
	case "math_number":
		return mathNumber(b)
	case "math_arithmetic":
		op, ok := arithmeticOps[fieldText(b, "OP")]
		if !ok {
			op = arithmeticOps["ADD"]
		}
		return g.binary(b, op.text, op.order, "0", "0")
	case "variables_get":
		return g.fieldVar(b, "VAR"), orderAtomic, nil
	case "procedures_callreturn":
		call, err := g.procedureCall(b)
		return call, orderFunctionCall, err
	default:
		return "", 0, fmt.Errorf("%w: %s (block %s)", ErrUnknownKind, b.Type, b.ID)
	}
}

var compareOps = map[string]string{
	"EQ":  "==",
	"NEQ": "!=",
	"LT":  "<",
	"LTE": "<=",
	"GT":  ">",
	"GTE": ">=",
}

type arithmeticOp struct {
	text  string
	order order
}

var arithmeticOps = map[string]arithmeticOp{
	"ADD":      {" + ", orderAdditive},
	"MINUS":    {" - ", orderAdditive},
	"MULTIPLY": {" * ", orderMultiplicative},
	"DIVIDE":   {" / ", orderMultiplicative},
	"POWER":    {" ** ", orderExponentiation},
}

func (g *gen) binary(b *program.Block, op string, ord order, defA, defB string) (string, order, error) {
	a, err := g.value(b, "A", ord)
	if err != nil {
		return "", 0, err
	}
	c, err := g.value(b, "B", ord)
	if err != nil {
		return "", 0, err
	}
	if a == "" {
		a = defA
	}
	if c == "" {
		c = defB
	}
	return a + op + c, ord, nil
}

func mathNumber(b *program.Block) (string, order, error) {
	f := math.NaN()
	if v, ok := b.Field("NUM"); ok {
		switch v.Kind {
		case program.FieldNumber:
			if n, err := v.Number.Float64(); err == nil {
				f = n
			}
		case program.FieldText:
			if n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64); err == nil {
				f = n
			} else if strings.TrimSpace(v.Text) == "" {
				f = 0
			}
		}
	} else {
		f = 0
	}
	switch {
	case math.IsInf(f, 1):
		return "float('inf')", orderFunctionCall, nil
	case math.IsInf(f, -1):
		return "-float('inf')", orderUnarySign, nil
	case f < 0:
		return formatNumber(f), orderUnarySign, nil
	}
	return formatNumber(f), orderAtomic, nil
}

// value generates the block plugged into input name, parenthesized when
// its precedence is looser than outer. A missing or disabled block yields "".
func (g *gen) value(b *program.Block, name string, outer order) (string, error) {
	child := b.Input(name)
	if child == nil || !child.Enabled {
		return "", nil
	}
	code, inner, err := g.expr(child)
	if err != nil || code == "" {
		return "", err
	}
	if needsParens(outer, inner) {
		code = "(" + code + ")"
	}
	return code, nil
}

func needsParens(outer, inner order) bool {
	oc, ic := math.Floor(float64(outer)), math.Floor(float64(inner))
	if oc > ic {
		return false
	}
	if oc == ic && (oc == float64(orderAtomic) || oc == float64(orderNone)) {
		return false
	}
	for _, o := range orderOverrides {
		if o[0] == outer && o[1] == inner {
			return false
		}
	}
	return true
}

// branch generates the statement stack in input name, indented one level.
func (g *gen) branch(b *program.Block, name string) (string, error) {
	code, err := g.stack(b.Input(name))
	if err != nil {
		return "", err
	}
	return prefixLines(code, indent), nil
}

func orPass(code string) string {
	if code == "" {
		return pass
	}
	return code
}

func fieldText(b *program.Block, name string) string {
	f, _ := b.Field(name)
	if f.Kind == program.FieldNumber {
		return f.Number.String()
	}
	return f.Text
}

// fieldVar resolves a VAR-style field to its identifier.
func (g *gen) fieldVar(b *program.Block, name string) string {
	if f, ok := b.Field(name); ok {
		if id, ok := g.varName(f); ok {
			return id
		}
	}
	return g.names.get("item", nameVariable)
}

type ifState struct {
	ElseIfCount int  `json:"elseIfCount"`
	HasElse     bool `json:"hasElse"`
}

func (g *gen) controlsIf(b *program.Block) (string, error) {
	var st ifState
	if err := decodeExtraState(b.ExtraState, &st); err != nil {
		return "", fmt.Errorf("%w: %s (block %s): %v", program.ErrBadWorkspace, b.Type, b.ID, err)
	}
	if attrs, ok := mutationAttrs(b.ExtraState); ok {
		st.ElseIfCount, _ = strconv.Atoi(attrs["elseif"])
		st.HasElse = attrs["else"] == "1"
	}
	// Inputs present in the serialization win over a stale mutation.
	for name := range b.Inputs {
		if n, err := strconv.Atoi(strings.TrimPrefix(name, "IF")); err == nil && strings.HasPrefix(name, "IF") && n > st.ElseIfCount {
			st.ElseIfCount = n
		}
	}
	if b.Type == "controls_ifelse" || b.Input("ELSE") != nil {
		st.HasElse = true
	}

	var sb strings.Builder
	for n := 0; n <= st.ElseIfCount; n++ {
		cond, err := g.value(b, fmt.Sprintf("IF%d", n), orderNone)
		if err != nil {
			return "", err
		}
		if cond == "" {
			cond = "False"
		}
		body, err := g.branch(b, fmt.Sprintf("DO%d", n))
		if err != nil {
			return "", err
		}
		kw := "elif "
		if n == 0 {
			kw = "if "
		}
		sb.WriteString(kw + cond + ":\n" + orPass(body))
	}
	if st.HasElse {
		body, err := g.branch(b, "ELSE")
		if err != nil {
			return "", err
		}
		sb.WriteString("else:\n" + orPass(body))
	}
	return sb.String(), nil
}

func (g *gen) controlsRepeat(b *program.Block) (string, error) {
	var times string
	if b.Type == "controls_repeat" {
		f, _ := strconv.ParseFloat(strings.TrimSpace(fieldText(b, "TIMES")), 64)
		times = strconv.Itoa(int(f))
	} else {
		v, err := g.value(b, "TIMES", orderNone)
		if err != nil {
			return "", err
		}
		switch {
		case v == "":
			times = "0"
		case isNumber(v):
			f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
			times = strconv.Itoa(int(f))
		default:
			times = "int(" + v + ")"
		}
	}
	body, err := g.branch(b, "DO")
	if err != nil {
		return "", err
	}
	loopVar := g.names.distinct("count")
	return "for " + loopVar + " in range(" + times + "):\n" + orPass(body), nil
}

type procedureState struct {
	Name   string            `json:"name"`
	Params []json.RawMessage `json:"params"`
}

// paramNames reads procedure parameters from either state form: a list of
// {"name":...} objects on definitions or a list of names on calls.
func paramNames(raw json.RawMessage) (name string, params []string, err error) {
	if attrs, ok := mutationAttrs(raw); ok {
		var s string
		_ = json.Unmarshal(raw, &s)
		for _, m := range mutationArg.FindAllStringSubmatch(s, -1) {
			params = append(params, m[1])
		}
		return attrs["name"], params, nil
	}
	var st procedureState
	if err := decodeExtraState(raw, &st); err != nil {
		return "", nil, err
	}
	for _, p := range st.Params {
		var s string
		if json.Unmarshal(p, &s) == nil {
			params = append(params, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(p, &obj); err != nil {
			return "", nil, err
		}
		params = append(params, obj.Name)
	}
	return st.Name, params, nil
}

func (g *gen) procedureDef(b *program.Block) error {
	_, params, err := paramNames(b.ExtraState)
	if err != nil {
		return fmt.Errorf("%w: %s (block %s): %v", program.ErrBadWorkspace, b.Type, b.ID, err)
	}
	funcName := g.names.get(fieldText(b, "NAME"), nameProcedure)

	args := make([]string, len(params))
	isParam := map[string]bool{}
	for i, p := range params {
		args[i] = g.names.get(p, nameVariable)
		isParam[strings.ToLower(p)] = true
	}
	var globals []string
	for _, v := range g.usedVariables() {
		if !isParam[strings.ToLower(v.Name)] {
			globals = append(globals, g.names.get(v.Name, nameVariable))
		}
	}
	globalLine := ""
	if len(globals) > 0 {
		globalLine = indent + "global " + strings.Join(globals, ", ") + "\n"
	}

	body, err := g.branch(b, "STACK")
	if err != nil {
		return err
	}
	ret := ""
	if b.Type == "procedures_defreturn" {
		v, err := g.value(b, "RETURN", orderNone)
		if err != nil {
			return err
		}
		if v != "" {
			ret = indent + "return " + v + "\n"
		}
	}
	if body == "" && ret == "" {
		body = pass
	}
	g.define("%"+funcName, "def "+funcName+"("+strings.Join(args, ", ")+"):\n"+globalLine+body+ret)
	return nil
}

// usedVariables returns the registered variables some block references,
// in registry order.
func (g *gen) usedVariables() []program.Variable {
	used := map[string]bool{}
	g.doc.Walk(func(b *program.Block) {
		for _, f := range b.Fields {
			if v, ok := g.doc.Variable(f); ok {
				used[v.ID] = true
			}
		}
	})
	var out []program.Variable
	for _, v := range g.doc.Variables {
		if used[v.ID] {
			out = append(out, v)
		}
	}
	return out
}

func (g *gen) procedureCall(b *program.Block) (string, error) {
	name, params, err := paramNames(b.ExtraState)
	if err != nil {
		return "", fmt.Errorf("%w: %s (block %s): %v", program.ErrBadWorkspace, b.Type, b.ID, err)
	}
	if name == "" {
		name = fieldText(b, "NAME")
	}
	args := make([]string, len(params))
	for i := range params {
		v, err := g.value(b, fmt.Sprintf("ARG%d", i), orderNone)
		if err != nil {
			return "", err
		}
		if v == "" {
			v = "None"
		}
		args[i] = v
	}
	return g.names.get(name, nameProcedure) + "(" + strings.Join(args, ", ") + ")", nil
}

func (g *gen) ifReturn(b *program.Block) (string, error) {
	cond, err := g.value(b, "CONDITION", orderNone)
	if err != nil {
		return "", err
	}
	if cond == "" {
		cond = "False"
	}
	code := "if " + cond + ":\n"
	var st struct {
		HasReturnValue *bool `json:"hasReturnValue"`
	}
	_ = decodeExtraState(b.ExtraState, &st)
	if attrs, ok := mutationAttrs(b.ExtraState); ok {
		v := attrs["value"] != "0"
		st.HasReturnValue = &v
	}
	if st.HasReturnValue == nil || *st.HasReturnValue {
		v, err := g.value(b, "VALUE", orderNone)
		if err != nil {
			return "", err
		}
		if v == "" {
			v = "None"
		}
		return code + indent + "return " + v + "\n", nil
	}
	return code + indent + "return\n", nil
}

// decodeExtraState fills v from a JSON object state. Absent, null and
// string (XML mutation) states leave v untouched.
func decodeExtraState(raw json.RawMessage, v any) error {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" || s[0] != '{' {
		return nil
	}
	return json.Unmarshal(raw, v)
}

var (
	mutationAttr = regexp.MustCompile(`(\w+)="([^"]*)"`)
	mutationArg  = regexp.MustCompile(`<arg\s+name="([^"]*)"`)
)

// mutationAttrs reads the attributes of an XML mutation carried as a
// string state, e.g. "<mutation elseif=\"1\" else=\"1\"></mutation>".
func mutationAttrs(raw json.RawMessage) (map[string]string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || !strings.HasPrefix(strings.TrimSpace(s), "<mutation") {
		return nil, false
	}
	head, _, _ := strings.Cut(s, ">")
	attrs := map[string]string{}
	for _, m := range mutationAttr.FindAllStringSubmatch(head, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs, true
}

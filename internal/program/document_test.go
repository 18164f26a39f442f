package program

import (
	"errors"
	"testing"
)

func TestDecode_EmptyForms(t *testing.T) {
	for _, raw := range []string{"", "  ", "{}", `{"blocks":{"languageVersion":0,"blocks":[]}}`} {
		d, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%q): %v", raw, err)
		}
		if !d.IsEmpty() {
			t.Fatalf("Decode(%q): expected empty document", raw)
		}
	}
}

func TestDecode_StackFieldsAndVariables(t *testing.T) {
	d, err := Decode([]byte(`{
	  "blocks":{"languageVersion":0,"blocks":[
	    {"type":"robot_record_position","id":"b1","x":10,"y":20,
	     "fields":{"POS":{"id":"v1"}},
	     "next":{"block":{"type":"robot_move","id":"b2","fields":{"X":1,"Y":2.5,"Z":-3},
	       "next":{"block":{"type":"robot_rotate","id":"b3","fields":{"JOINT":"SHOULDER","ANGLE":45}}}}}}
	  ]},
	  "variables":[{"name":"pos1","id":"v1"}]
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(d.Blocks) != 1 {
		t.Fatalf("top blocks=%d want=1", len(d.Blocks))
	}
	rec := d.Blocks[0]
	if rec.Type != "robot_record_position" || !rec.Enabled {
		t.Fatalf("unexpected top block: %+v", rec)
	}
	pos, ok := rec.Field("POS")
	if !ok || pos.Kind != FieldVariable {
		t.Fatalf("POS not a variable ref: %+v", pos)
	}
	v, ok := d.Variable(pos)
	if !ok || v.Name != "pos1" {
		t.Fatalf("variable resolve: %+v ok=%v", v, ok)
	}

	mv := rec.Next
	if mv == nil || mv.Type != "robot_move" {
		t.Fatalf("expected move after record, got %+v", mv)
	}
	y, _ := mv.Field("Y")
	if y.Kind != FieldNumber || y.Number.String() != "2.5" {
		t.Fatalf("Y=%+v", y)
	}
	joint, _ := mv.Next.Field("JOINT")
	if joint.Kind != FieldText || joint.Text != "SHOULDER" {
		t.Fatalf("JOINT=%+v", joint)
	}
}

func TestDecode_TopLevelOrderByPosition(t *testing.T) {
	d, err := Decode([]byte(`{"blocks":{"blocks":[
	  {"type":"robot_release","x":0,"y":300},
	  {"type":"robot_grip","x":50,"y":100},
	  {"type":"robot_move","x":10,"y":100}
	]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := []string{d.Blocks[0].Type, d.Blocks[1].Type, d.Blocks[2].Type}
	want := []string{"robot_move", "robot_grip", "robot_release"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order=%v want=%v", got, want)
		}
	}
}

func TestDecode_TopLevelOrderFollowsScanLine(t *testing.T) {
	// Keys: grip 0 + 1000·sin(3°) ≈ 52.3, release 40, move 52.3 (tie keeps order).
	d, err := Decode([]byte(`{"blocks":{"blocks":[
	  {"type":"robot_grip","x":1000,"y":0},
	  {"type":"robot_release","x":0,"y":40},
	  {"type":"robot_move","x":1000,"y":0}
	]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := []string{d.Blocks[0].Type, d.Blocks[1].Type, d.Blocks[2].Type}
	want := []string{"robot_release", "robot_grip", "robot_move"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order=%v want=%v", got, want)
		}
	}
}

func TestDecode_ShadowAndDisabled(t *testing.T) {
	d, err := Decode([]byte(`{"blocks":{"blocks":[
	  {"type":"controls_repeat_ext","inputs":{"TIMES":{"shadow":{"type":"math_number","fields":{"NUM":3}}}},
	   "next":{"block":{"type":"robot_grip","enabled":false,
	     "next":{"block":{"type":"robot_release","disabledReasons":["MANUALLY_DISABLED"]}}}}}
	]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rep := d.Blocks[0]
	if times := rep.Input("TIMES"); times == nil || times.Type != "math_number" {
		t.Fatalf("shadow not used: %+v", times)
	}
	if rep.Next.Enabled || rep.Next.Next.Enabled {
		t.Fatalf("expected disabled blocks")
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":           `{`,
		"block without type": `{"blocks":{"blocks":[{"id":"x"}]}}`,
		"bad field":          `{"blocks":{"blocks":[{"type":"robot_move","fields":{"X":[1]}}]}}`,
		"variable no name":   `{"variables":[{"id":"v1","name":""}]}`,
	}
	for name, raw := range cases {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrBadWorkspace) {
			t.Fatalf("%s: expected ErrBadWorkspace, got %v", name, err)
		}
	}
}

func TestDecode_UnknownVariable(t *testing.T) {
	_, err := Decode([]byte(`{"blocks":{"blocks":[{"type":"robot_move_to_recorded","fields":{"POS":{"id":"nope"}}}]}}`))
	if !errors.Is(err, ErrUnknownVariable) {
		t.Fatalf("expected ErrUnknownVariable, got %v", err)
	}
}

func TestDecode_NamedReferenceRegistersVariable(t *testing.T) {
	d, err := Decode([]byte(`{"blocks":{"blocks":[{"type":"robot_move_to_recorded","fields":{"POS":{"id":"v9","name":"home"}}}]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(d.Variables) != 1 || d.Variables[0].Name != "home" || d.Variables[0].ID != "v9" {
		t.Fatalf("variables=%+v", d.Variables)
	}
}

func TestWalk_VisitsInputsBeforeNext(t *testing.T) {
	inner := &Block{Type: "robot_grip", Enabled: true}
	top := &Block{Type: "controls_repeat_ext", Enabled: true,
		Inputs: map[string]*Block{"DO": inner},
		Next:   &Block{Type: "robot_release", Enabled: true},
	}
	d, err := New([]*Block{top}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var seen []string
	d.Walk(func(b *Block) { seen = append(seen, b.Type) })
	want := []string{"controls_repeat_ext", "robot_grip", "robot_release"}
	if len(seen) != len(want) {
		t.Fatalf("seen=%v", seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen=%v want=%v", seen, want)
		}
	}
}

package toolbox

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestDefault_Layout(t *testing.T) {
	tb := Default()
	var names []string
	for _, c := range tb.Contents {
		names = append(names, c.Name)
	}
	want := "Movement,Positions,Gripper,Control,Logic,Math,Variables,Functions"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("categories=%s want=%s", got, want)
	}
	if tb.Contents[0].Colour != "#5C81A6" || len(tb.Contents[0].Contents) != 4 {
		t.Fatalf("movement=%+v", tb.Contents[0])
	}
	if tb.Contents[6].Custom != CustomVariable || tb.Contents[7].Custom != CustomProcedure {
		t.Fatalf("custom categories=%+v %+v", tb.Contents[6], tb.Contents[7])
	}
	if tb.Digest == "" || tb.Digest != Default().Digest {
		t.Fatalf("digest not stable: %q", tb.Digest)
	}
	if err := tb.Validate(func(string) bool { return true }); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsUnknownBlock(t *testing.T) {
	tb := Default()
	known := func(typ string) bool { return typ != "robot_grip" }
	if err := tb.Validate(known); !errors.Is(err, ErrInvalidToolbox) {
		t.Fatalf("expected ErrInvalidToolbox, got %v", err)
	}
}

func TestValidate_RejectsBadShapes(t *testing.T) {
	cases := map[string]func(*Toolbox){
		"no categories":    func(tb *Toolbox) { tb.Contents = nil },
		"duplicate name":   func(tb *Toolbox) { tb.Contents[1].Name = tb.Contents[0].Name },
		"custom with item": func(tb *Toolbox) { tb.Contents[6].Contents = []Item{{Kind: KindBlock, Type: "robot_grip"}} },
		"unknown custom":   func(tb *Toolbox) { tb.Contents[6].Custom = "COLOUR_PALETTE" },
		"wrong kind":       func(tb *Toolbox) { tb.Kind = "flyoutToolbox" },
	}
	for name, mutate := range cases {
		tb := Default()
		mutate(tb)
		if err := tb.Validate(nil); !errors.Is(err, ErrInvalidToolbox) {
			t.Fatalf("%s: expected ErrInvalidToolbox, got %v", name, err)
		}
	}
}

func TestLoad_FillsKinds(t *testing.T) {
	fsys := fstest.MapFS{"toolbox.json": {Data: []byte(`{"contents":[
	  {"name":"Arm","colour":"#000000","contents":[{"type":"robot_move"},{"type":"robot_grip"}]},
	  {"name":"Vars","colour":"#111111","custom":"VARIABLE"}
	]}`)}}
	tb, err := Load(fsys, "toolbox.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := tb.Validate(nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := strings.Join(tb.BlockTypes(), ","); got != "robot_move,robot_grip" {
		t.Fatalf("block types=%s", got)
	}
	if tb.Digest == Default().Digest {
		t.Fatalf("override digest equals default")
	}

	if _, err := Load(fstest.MapFS{"bad.json": {Data: []byte(`[`)}}, "bad.json"); !errors.Is(err, ErrInvalidToolbox) {
		t.Fatalf("expected ErrInvalidToolbox, got %v", err)
	}
}

func TestXML(t *testing.T) {
	raw, err := Default().XML()
	if err != nil {
		t.Fatalf("XML: %v", err)
	}
	s := string(raw)
	for _, want := range []string{
		`<xml id="toolbox" style="display: none">`,
		`<category name="Movement" colour="#5C81A6">`,
		`<block type="robot_set_all_angles"></block>`,
		`<category name="Functions" custom="PROCEDURE" colour="#A65C5C"></category>`,
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("xml missing %q:\n%s", want, s)
		}
	}
}

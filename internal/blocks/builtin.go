package blocks

import "encoding/json"

var statement = json.RawMessage("null")

func num(v float64) *float64 { return &v }

func jointArg() Arg {
	return Arg{
		Type: ArgDropdown,
		Name: "JOINT",
		Options: [][2]string{
			{"base", JointBase},
			{"shoulder", JointShoulder},
			{"elbow", JointElbow},
			{"wrist", JointWrist},
		},
	}
}

var builtinDefs = []Def{
	{
		Type:     string(KindMove),
		Message0: "move arm to X: %1 Y: %2 Z: %3",
		Args0: []Arg{
			{Type: ArgNumber, Name: "X", Value: num(0)},
			{Type: ArgNumber, Name: "Y", Value: num(0)},
			{Type: ArgNumber, Name: "Z", Value: num(0)},
		},
		Colour:  230,
		Tooltip: "Move to coordinates",
	},
	{
		Type:     string(KindRotate),
		Message0: "rotate joint %1 by %2°",
		Args0:    []Arg{jointArg(), {Type: ArgAngle, Name: "ANGLE", Angle: num(90)}},
		Colour:   160,
		Tooltip:  "Rotate a joint",
	},
	{
		Type:     string(KindSetAngle),
		Message0: "set joint %1 to %2°",
		Args0:    []Arg{jointArg(), {Type: ArgAngle, Name: "ANGLE", Angle: num(0)}},
		Colour:   160,
		Tooltip:  "Set joint to absolute angle",
	},
	{
		Type:     string(KindSetAllAngles),
		Message0: "set all joints base: %1 shoulder: %2 elbow: %3 wrist: %4",
		Args0: []Arg{
			{Type: ArgAngle, Name: "BASE", Angle: num(0)},
			{Type: ArgAngle, Name: "SHOULDER", Angle: num(0)},
			{Type: ArgAngle, Name: "ELBOW", Angle: num(0)},
			{Type: ArgAngle, Name: "WRIST", Angle: num(0)},
		},
		Colour:  200,
		Tooltip: "Set all joints to specific angles",
	},
	{
		Type:     string(KindRecordPosition),
		Message0: "record current position as %1",
		Args0:    []Arg{{Type: ArgVariable, Name: "POS", Variable: DefaultVariable}},
		Colour:   290,
		Tooltip:  "Record current position to a variable",
	},
	{
		Type:     string(KindMoveToRecorded),
		Message0: "move to recorded position %1",
		Args0:    []Arg{{Type: ArgVariable, Name: "POS", Variable: DefaultVariable}},
		Colour:   290,
		Tooltip:  "Move arm to previously recorded position",
	},
	{
		Type:     string(KindGrip),
		Message0: "grip",
		Colour:   20,
		Tooltip:  "Close gripper",
	},
	{
		Type:     string(KindRelease),
		Message0: "release",
		Colour:   20,
		Tooltip:  "Open gripper",
	},
}

// Builtin returns the catalog the editor ships with.
func Builtin() *Catalog {
	c := &Catalog{Defs: make(map[Kind]Def, len(builtinDefs))}
	for _, d := range builtinDefs {
		d.PreviousStatement = statement
		d.NextStatement = statement
		c.Defs[Kind(d.Type)] = d
	}
	raw, _ := c.MarshalEditorJSON()
	c.Digest = sha256Hex(raw)
	return c
}

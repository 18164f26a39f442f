package blocks

// Kind tags one of the robot block types the editor can place.
type Kind string

const (
	KindMove           Kind = "robot_move"
	KindRotate         Kind = "robot_rotate"
	KindSetAngle       Kind = "robot_set_angle"
	KindSetAllAngles   Kind = "robot_set_all_angles"
	KindRecordPosition Kind = "robot_record_position"
	KindMoveToRecorded Kind = "robot_move_to_recorded"
	KindGrip           Kind = "robot_grip"
	KindRelease        Kind = "robot_release"
)

var allKinds = []Kind{
	KindMove,
	KindRotate,
	KindSetAngle,
	KindSetAllAngles,
	KindRecordPosition,
	KindMoveToRecorded,
	KindGrip,
	KindRelease,
}

// Joint dropdown tokens, in menu order.
const (
	JointBase     = "BASE"
	JointShoulder = "SHOULDER"
	JointElbow    = "ELBOW"
	JointWrist    = "WRIST"
)

var joints = []string{JointBase, JointShoulder, JointElbow, JointWrist}

// Kinds returns every robot kind in catalog order.
func Kinds() []Kind { return append([]Kind(nil), allKinds...) }

// Joints returns the JOINT dropdown tokens in menu order.
func Joints() []string { return append([]string(nil), joints...) }

func ParseKind(s string) (Kind, bool) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Fields lists the field names a block of kind k carries, in argument order.
func (k Kind) Fields() []string {
	switch k {
	case KindMove:
		return []string{"X", "Y", "Z"}
	case KindRotate, KindSetAngle:
		return []string{"JOINT", "ANGLE"}
	case KindSetAllAngles:
		return []string{"BASE", "SHOULDER", "ELBOW", "WRIST"}
	case KindRecordPosition, KindMoveToRecorded:
		return []string{"POS"}
	default:
		return nil
	}
}

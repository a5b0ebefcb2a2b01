package runtime

import "github.com/aretw0/wmbridge/pkg/domain"

// readings holds the latest robot state and derived counts. Static input
// getters read from it; it is only written under the synchronization lock.
type readings struct {
	state       domain.RobotState
	objectCount int
	faceCount   int
	holding     string
}

// reading extracts one static input from the current readings.
type reading func(r *readings) any

// boundReading is the Getter for one static input.
type boundReading struct {
	src  *readings
	read reading
}

func (b boundReading) Value() any { return b.read(b.src) }

func (r *readings) leaf(read reading) domain.Leaf {
	return domain.Leaf{Getter: boundReading{src: r, read: read}}
}

// staticInputs describes the robot attributes kept on the input link for
// the lifetime of the bridge.
func staticInputs(r *readings) domain.SubTree {
	return domain.SubTree{
		"battery-voltage":    r.leaf(func(s *readings) any { return s.state.BatteryVoltage }),
		"carrying-block":     r.leaf(func(s *readings) any { return s.state.CarryingBlock }),
		"carrying-object-id": r.leaf(func(s *readings) any { return s.state.CarryingObjectID }),
		"holding-object":     r.leaf(func(s *readings) any { return s.holding }),
		"charging":           r.leaf(func(s *readings) any { return s.state.Charging }),
		"cliff-detected":     r.leaf(func(s *readings) any { return s.state.CliffDetected }),
		"head-angle":         r.leaf(func(s *readings) any { return s.state.HeadAngle }),
		"face-count":         r.leaf(func(s *readings) any { return s.faceCount }),
		"object-count":       r.leaf(func(s *readings) any { return s.objectCount }),
		"picked-up":          r.leaf(func(s *readings) any { return s.state.PickedUp }),
		"robot-id":           r.leaf(func(s *readings) any { return s.state.RobotID }),
		"serial":             r.leaf(func(s *readings) any { return s.state.Serial }),
		"pose": domain.SubTree{
			"rot": r.leaf(func(s *readings) any { return s.state.Pose.Rot }),
			"x":   r.leaf(func(s *readings) any { return s.state.Pose.X }),
			"y":   r.leaf(func(s *readings) any { return s.state.Pose.Y }),
			"z":   r.leaf(func(s *readings) any { return s.state.Pose.Z }),
		},
		"lift": domain.SubTree{
			"angle":  r.leaf(func(s *readings) any { return s.state.LiftAngle }),
			"height": r.leaf(func(s *readings) any { return s.state.LiftHeight }),
			"ratio":  r.leaf(func(s *readings) any { return s.state.LiftRatio }),
		},
	}
}

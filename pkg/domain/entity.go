package domain

import (
	"fmt"
	"strings"
)

// EntityKind distinguishes the two families of tracked entities.
type EntityKind string

const (
	KindObject EntityKind = "object"
	KindFace   EntityKind = "face"
)

// Root returns the input-link attribute the kind is tracked under.
func (k EntityKind) Root() string {
	switch k {
	case KindFace:
		return "faces"
	default:
		return "objects"
	}
}

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	return k == KindObject || k == KindFace
}

// HandlePrefix is the prefix of the kind's default handles.
func (k EntityKind) HandlePrefix() string {
	if k == KindFace {
		return "face"
	}
	return "obj"
}

// DefaultHandle is the handle an unlinked perception identity resolves to.
func (k EntityKind) DefaultHandle(id int) Handle {
	return Handle(fmt.Sprintf("%s%d", k.HandlePrefix(), id))
}

// ParseEntityKind parses "object"/"face" (plural forms accepted).
func ParseEntityKind(s string) (EntityKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "object", "objects", "obj":
		return KindObject, nil
	case "face", "faces":
		return KindFace, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
}

// Handle is the stable symbolic name of a tracked entity.
type Handle string

// Pose is a position in millimeters plus a yaw in degrees.
type Pose struct {
	X   float64 `json:"x" yaml:"x"`
	Y   float64 `json:"y" yaml:"y"`
	Z   float64 `json:"z" yaml:"z"`
	Rot float64 `json:"rot" yaml:"rot"`
}

// Spec returns the pose as a sub-tree of static leaves.
func (p Pose) Spec() SubTree {
	return SubTree{
		"rot": StaticLeaf{Value: p.Rot},
		"x":   StaticLeaf{Value: p.X},
		"y":   StaticLeaf{Value: p.Y},
		"z":   StaticLeaf{Value: p.Z},
	}
}

// Observation is one entity in a perception snapshot.
type Observation interface {
	PerceptionID() int
	Kind() EntityKind
	Properties() SubTree
}

// ObjectObservation is a visible object as reported by the sensor subsystem.
type ObjectObservation struct {
	ID              int     `json:"id" yaml:"id"`
	TypeName        string  `json:"type_name" yaml:"type_name"`
	DescriptiveName string  `json:"descriptive_name" yaml:"descriptive_name"`
	Liftable        bool    `json:"liftable" yaml:"liftable"`
	Pose            Pose    `json:"pose" yaml:"pose"`
	LightCube       bool    `json:"light_cube" yaml:"light_cube"`
	CubeID          int     `json:"cube_id,omitempty" yaml:"cube_id"`
	Name            string  `json:"name,omitempty" yaml:"name"`
	Connected       bool    `json:"connected,omitempty" yaml:"connected"`
	Moving          bool    `json:"moving,omitempty" yaml:"moving"`
	LastTapped      float64 `json:"last_tapped,omitempty" yaml:"last_tapped"`
}

func (o ObjectObservation) PerceptionID() int { return o.ID }
func (o ObjectObservation) Kind() EntityKind  { return KindObject }

// Properties builds the attribute sub-tree written under the object's handle.
// Light cubes are typed "led-cube"; other objects split their type name on
// the first "-" into type and name.
func (o ObjectObservation) Properties() SubTree {
	t := SubTree{
		"object-id":        StaticLeaf{Value: o.ID},
		"descriptive-name": StaticLeaf{Value: o.DescriptiveName},
		"liftable":         StaticLeaf{Value: o.Liftable},
		"pose":             o.Pose.Spec(),
	}
	if o.LightCube {
		lastTapped := o.LastTapped
		if lastTapped == 0 {
			lastTapped = -1.0
		}
		t["type"] = StaticLeaf{Value: "led-cube"}
		t["connected"] = StaticLeaf{Value: o.Connected}
		t["cube-id"] = StaticLeaf{Value: o.CubeID}
		t["moving"] = StaticLeaf{Value: o.Moving}
		t["last-tapped"] = StaticLeaf{Value: lastTapped}
		t["name"] = StaticLeaf{Value: o.Name}
		return t
	}
	typ, name := splitTypeName(o.TypeName)
	if o.Name != "" {
		name = o.Name
	}
	t["type"] = StaticLeaf{Value: typ}
	t["name"] = StaticLeaf{Value: name}
	return t
}

func splitTypeName(s string) (string, string) {
	parts := strings.Split(s, "-")
	return parts[0], strings.Join(parts[1:], "")
}

// FaceObservation is a visible face as reported by the sensor subsystem.
type FaceObservation struct {
	ID              int     `json:"id" yaml:"id"`
	Name            string  `json:"name,omitempty" yaml:"name"`
	Expression      string  `json:"expression,omitempty" yaml:"expression"`
	ExpressionScore float64 `json:"expression_score,omitempty" yaml:"expression_score"`
	Pose            Pose    `json:"pose" yaml:"pose"`
}

func (f FaceObservation) PerceptionID() int { return f.ID }
func (f FaceObservation) Kind() EntityKind  { return KindFace }

// Properties builds the attribute sub-tree written under the face's handle.
func (f FaceObservation) Properties() SubTree {
	name := f.Name
	if name == "" {
		name = "unknown"
	}
	expression := f.Expression
	if expression == "" {
		expression = "unknown"
	}
	return SubTree{
		"expression": StaticLeaf{Value: expression},
		"exp-score":  StaticLeaf{Value: f.ExpressionScore},
		"face-id":    StaticLeaf{Value: f.ID},
		"name":       StaticLeaf{Value: name},
		"pose":       f.Pose.Spec(),
	}
}

// RobotState holds the static scalar readings of the robot.
type RobotState struct {
	RobotID          int     `json:"robot_id" yaml:"robot_id"`
	Serial           string  `json:"serial" yaml:"serial"`
	BatteryVoltage   float64 `json:"battery_voltage" yaml:"battery_voltage"`
	CarryingBlock    bool    `json:"carrying_block" yaml:"carrying_block"`
	CarryingObjectID int     `json:"carrying_object_id" yaml:"carrying_object_id"`
	Charging         bool    `json:"charging" yaml:"charging"`
	CliffDetected    bool    `json:"cliff_detected" yaml:"cliff_detected"`
	PickedUp         bool    `json:"picked_up" yaml:"picked_up"`
	HeadAngle        float64 `json:"head_angle" yaml:"head_angle"`
	LiftAngle        float64 `json:"lift_angle" yaml:"lift_angle"`
	LiftHeight       float64 `json:"lift_height" yaml:"lift_height"`
	LiftRatio        float64 `json:"lift_ratio" yaml:"lift_ratio"`
	Pose             Pose    `json:"pose" yaml:"pose"`
}

// PerceptionSnapshot is one pull from the sensor subsystem.
type PerceptionSnapshot struct {
	Robot   RobotState
	Objects []ObjectObservation
	Faces   []FaceObservation
}

// EventType is the kind of an asynchronous perception notification.
type EventType string

const (
	EventAppeared    EventType = "appeared"
	EventDisappeared EventType = "disappeared"
	EventLink        EventType = "link"
)

// PerceptionEvent is an asynchronous notification queued for the next input
// phase. Link events carry Source and Destination instead of an observation.
type PerceptionEvent struct {
	Type        EventType
	Kind        EntityKind
	ID          int
	Observation Observation
	Source      Handle
	Destination Handle
}

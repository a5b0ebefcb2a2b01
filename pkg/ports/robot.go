package ports

import (
	"context"

	"github.com/aretw0/wmbridge/pkg/domain"
)

// Action is an in-flight asynchronous robot operation.
type Action interface {
	// Done reports whether the action has finished.
	Done() bool

	// Outcome returns the result of a finished action. Code and reason are
	// empty on success.
	Outcome() (ok bool, code, reason string)

	// Abort requests cancellation. It must not block and must not call back
	// into the bridge.
	Abort()
}

// Robot starts actions. Distances are millimeters, speeds millimeters per
// second, angles degrees and lift heights a ratio in [0, 1].
type Robot interface {
	DriveStraight(ctx context.Context, distanceMM, speedMMPS float64) (Action, error)
	TurnInPlace(ctx context.Context, angleDeg, speedDegPS float64) (Action, error)
	SetLiftHeight(ctx context.Context, ratio float64) (Action, error)
	SetHeadAngle(ctx context.Context, angleDeg float64) (Action, error)
	GoToObject(ctx context.Context, objectID int, distanceMM float64) (Action, error)
	PickUpObject(ctx context.Context, objectID int) (Action, error)
	PlaceOnObject(ctx context.Context, objectID int) (Action, error)
	PlaceObjectDown(ctx context.Context) (Action, error)
	DockWithCube(ctx context.Context, objectID int) (Action, error)
	TurnTowardsFace(ctx context.Context, faceID int) (Action, error)

	// SetBackpackLights and SetCubeLights complete synchronously.
	SetBackpackLights(ctx context.Context, color domain.Color) error
	SetCubeLights(ctx context.Context, objectID int, color domain.Color) error
}

// Perception is the pull-based view of the sensor subsystem.
type Perception interface {
	Snapshot(ctx context.Context) (domain.PerceptionSnapshot, error)
}

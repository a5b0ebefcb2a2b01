package runtime

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
)

// Head angle limits in degrees.
const (
	MinHeadAngle = -25.0
	MaxHeadAngle = 44.5
)

// Command verbs.
const (
	VerbDriveForward      = "drive-forward"
	VerbTurnInPlace       = "turn-in-place"
	VerbMoveLift          = "move-lift"
	VerbMoveHead          = "move-head"
	VerbGoToObject        = "go-to-object"
	VerbPickUpObject      = "pick-up-object"
	VerbPlaceOnObject     = "place-on-object"
	VerbPlaceObjectDown   = "place-object-down"
	VerbDockWithCube      = "dock-with-cube"
	VerbTurnToFace        = "turn-to-face"
	VerbSetBackpackLights = "set-backpack-lights"
	VerbChangeBlockColor  = "change-block-color"
	VerbLinkEntities      = "link-entities"
	VerbStop              = "stop"
)

// plan is a validated command. Exactly one of call and local is set.
type plan struct {
	// call starts the robot operation outside the synchronization lock.
	// A nil action means the operation completed synchronously.
	call func(ctx context.Context, r ports.Robot) (ports.Action, error)

	// local runs under the synchronization lock.
	local func(ctx context.Context) error

	args map[string]any
}

type handlerFunc func(d *Dispatcher, params map[string]any) (*plan, error)

var handlers = map[string]handlerFunc{
	VerbDriveForward:      handleDriveForward,
	VerbTurnInPlace:       handleTurnInPlace,
	VerbMoveLift:          handleMoveLift,
	VerbMoveHead:          handleMoveHead,
	VerbGoToObject:        handleGoToObject,
	VerbPickUpObject:      handlePickUpObject,
	VerbPlaceOnObject:     handlePlaceOnObject,
	VerbPlaceObjectDown:   handlePlaceObjectDown,
	VerbDockWithCube:      handleDockWithCube,
	VerbTurnToFace:        handleTurnToFace,
	VerbSetBackpackLights: handleSetBackpackLights,
	VerbChangeBlockColor:  handleChangeBlockColor,
	VerbLinkEntities:      handleLinkEntities,
	VerbStop:              handleStop,
}

// Verbs returns every known command verb, sorted.
func Verbs() []string {
	out := make([]string, 0, len(handlers))
	for v := range handlers {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// KnownVerb reports whether verb has a handler.
func KnownVerb(verb string) bool {
	_, ok := handlers[verb]
	return ok
}

func handleDriveForward(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		Distance float64 `param:"distance"`
		Speed    float64 `param:"speed"`
	}
	if err := decodeParams(params, &p, "distance", "speed"); err != nil {
		return nil, err
	}
	distance, speed := d.units.Distance(p.Distance), d.units.Speed(p.Speed)
	if err := finite("distance", distance); err != nil {
		return nil, err
	}
	if err := positive("speed", speed); err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return r.DriveStraight(ctx, distance, speed)
		},
		args: map[string]any{"distance_mm": distance, "speed_mmps": speed},
	}, nil
}

func handleTurnInPlace(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		Angle float64 `param:"angle"`
		Speed float64 `param:"speed"`
	}
	if err := decodeParams(params, &p, "angle", "speed"); err != nil {
		return nil, err
	}
	angle, speed := d.units.Angle(p.Angle), d.units.AngularSpeed(p.Speed)
	if err := finite("angle", angle); err != nil {
		return nil, err
	}
	if err := positive("speed", speed); err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return r.TurnInPlace(ctx, angle, speed)
		},
		args: map[string]any{"angle_deg": angle, "speed_degps": speed},
	}, nil
}

func handleMoveLift(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		Height float64 `param:"height"`
	}
	if err := decodeParams(params, &p, "height"); err != nil {
		return nil, err
	}
	if err := within("height", p.Height, 0, 1); err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return r.SetLiftHeight(ctx, p.Height)
		},
		args: map[string]any{"height": p.Height},
	}, nil
}

func handleMoveHead(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		Angle float64 `param:"angle"`
	}
	if err := decodeParams(params, &p, "angle"); err != nil {
		return nil, err
	}
	angle := d.units.Angle(p.Angle)
	if err := within("angle", angle, MinHeadAngle, MaxHeadAngle); err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return r.SetHeadAngle(ctx, angle)
		},
		args: map[string]any{"angle_deg": angle},
	}, nil
}

func handleGoToObject(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		ObjectID string  `param:"object-id"`
		Distance float64 `param:"distance"`
	}
	if err := decodeParams(params, &p, "object-id", "distance"); err != nil {
		return nil, err
	}
	id, err := d.resolveTarget(d.objects, "object-id", p.ObjectID)
	if err != nil {
		return nil, err
	}
	distance := d.units.Distance(p.Distance)
	if err := finite("distance", distance); err != nil {
		return nil, err
	}
	if distance < 0 {
		return nil, domain.Rejectf(domain.CodeInvalidParameter, "distance must not be negative, got %g", distance)
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return r.GoToObject(ctx, id, distance)
		},
		args: map[string]any{"object_id": id, "distance_mm": distance},
	}, nil
}

// objectPlan handles the verbs whose only parameter is a target object.
func objectPlan(d *Dispatcher, params map[string]any, start func(ctx context.Context, r ports.Robot, id int) (ports.Action, error)) (*plan, error) {
	var p struct {
		ObjectID string `param:"object-id"`
	}
	if err := decodeParams(params, &p, "object-id"); err != nil {
		return nil, err
	}
	id, err := d.resolveTarget(d.objects, "object-id", p.ObjectID)
	if err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return start(ctx, r, id)
		},
		args: map[string]any{"object_id": id},
	}, nil
}

func handlePickUpObject(d *Dispatcher, params map[string]any) (*plan, error) {
	return objectPlan(d, params, func(ctx context.Context, r ports.Robot, id int) (ports.Action, error) {
		return r.PickUpObject(ctx, id)
	})
}

func handlePlaceOnObject(d *Dispatcher, params map[string]any) (*plan, error) {
	return objectPlan(d, params, func(ctx context.Context, r ports.Robot, id int) (ports.Action, error) {
		return r.PlaceOnObject(ctx, id)
	})
}

func handleDockWithCube(d *Dispatcher, params map[string]any) (*plan, error) {
	return objectPlan(d, params, func(ctx context.Context, r ports.Robot, id int) (ports.Action, error) {
		return r.DockWithCube(ctx, id)
	})
}

func handlePlaceObjectDown(d *Dispatcher, params map[string]any) (*plan, error) {
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return r.PlaceObjectDown(ctx)
		},
	}, nil
}

func handleTurnToFace(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		FaceID string `param:"face-id"`
	}
	if err := decodeParams(params, &p, "face-id"); err != nil {
		return nil, err
	}
	id, err := d.resolveTarget(d.faces, "face-id", p.FaceID)
	if err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return r.TurnTowardsFace(ctx, id)
		},
		args: map[string]any{"face_id": id},
	}, nil
}

func parseColor(raw string) (domain.Color, error) {
	c, err := domain.ParseColor(raw)
	if err != nil {
		return "", domain.Rejectf(domain.CodeInvalidParameter, "%v", err)
	}
	return c, nil
}

func handleSetBackpackLights(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		Color string `param:"color"`
	}
	if err := decodeParams(params, &p, "color"); err != nil {
		return nil, err
	}
	color, err := parseColor(p.Color)
	if err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return nil, r.SetBackpackLights(ctx, color)
		},
		args: map[string]any{"color": string(color)},
	}, nil
}

func handleChangeBlockColor(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		ObjectID string `param:"object-id"`
		Color    string `param:"color"`
	}
	if err := decodeParams(params, &p, "object-id", "color"); err != nil {
		return nil, err
	}
	color, err := parseColor(p.Color)
	if err != nil {
		return nil, err
	}
	id, err := d.resolveTarget(d.objects, "object-id", p.ObjectID)
	if err != nil {
		return nil, err
	}
	return &plan{
		call: func(ctx context.Context, r ports.Robot) (ports.Action, error) {
			return nil, r.SetCubeLights(ctx, id, color)
		},
		args: map[string]any{"object_id": id, "color": string(color)},
	}, nil
}

func handleLinkEntities(d *Dispatcher, params map[string]any) (*plan, error) {
	var p struct {
		Source      string `param:"source-handle"`
		Destination string `param:"destination-handle"`
		Kind        string `param:"kind"`
	}
	if err := decodeParams(params, &p, "source-handle", "destination-handle"); err != nil {
		return nil, err
	}
	src, dest := domain.Handle(p.Source), domain.Handle(p.Destination)
	if src == dest {
		return nil, domain.Rejectf(domain.CodeInvalidParameter, "cannot link %s to itself", src)
	}

	tracker := d.objects
	switch {
	case p.Kind != "":
		kind, err := domain.ParseEntityKind(p.Kind)
		if err != nil {
			return nil, domain.Rejectf(domain.CodeInvalidParameter, "%v", err)
		}
		if kind == domain.KindFace {
			tracker = d.faces
		}
	case strings.HasPrefix(p.Source, "face"):
		tracker = d.faces
	}

	return &plan{
		local: func(ctx context.Context) error {
			return tracker.Link(src, dest)
		},
		args: map[string]any{"src": p.Source, "dest": p.Destination, "kind": string(tracker.Kind())},
	}, nil
}

func handleStop(d *Dispatcher, params map[string]any) (*plan, error) {
	return &plan{
		local: func(ctx context.Context) error {
			d.AbortAll(ctx)
			return nil
		},
	}, nil
}

// resolveTarget accepts either a perception identity ("7") or a handle
// ("obj7") and returns the perception identity of the tracked entity.
func (d *Dispatcher) resolveTarget(t *Tracker, name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if e, ok := t.Get(domain.Handle(raw)); ok {
		return e.PerceptionID, nil
	}

	prefix := t.Kind().HandlePrefix()
	digits := strings.TrimPrefix(raw, prefix)
	if f, err := strconv.ParseFloat(digits, 64); err == nil {
		if !(f >= math.MinInt32 && f <= math.MaxInt32) || f != math.Trunc(f) {
			return 0, domain.Rejectf(domain.CodeInvalidParameter, "%s %q is not an integral identity", name, raw)
		}
		id := int(f)
		if h, ok := t.HandleFor(id); ok {
			e, _ := t.Get(h)
			return e.PerceptionID, nil
		}
		return 0, domain.Rejectf(domain.CodeUnknownTarget, "no tracked %s with %s %d", t.Kind(), name, id)
	}
	if strings.HasPrefix(raw, prefix) {
		return 0, domain.Rejectf(domain.CodeUnknownTarget, "no tracked %s with handle %q", t.Kind(), raw)
	}
	return 0, domain.Rejectf(domain.CodeInvalidParameter, "%s %q is neither an id nor a handle", name, raw)
}

/*
Package wmbridge keeps the working memory of a symbolic cognitive architecture
in sync with the world model of a mobile robot.

Every decision cycle has two phases around the reasoning step. The input
phase pulls a perception snapshot, reconciles the visible objects and faces
against the tracked set and mirrors robot readings into the input tree,
writing only what changed. The output phase reads the commands the reasoning
step placed on the output tree, validates them, starts robot actions and
reports their status back under each command.

# Layout

The working memory, the robot and the sensor source are ports. The bridge
owns nothing but the part of the input tree it writes:

	input-link
	├── battery-voltage, head-angle, object-count, holding-object, ...
	├── pose {rot, x, y, z}
	├── lift {angle, height, ratio}
	├── objects
	│   └── obj7 {handle, sightings, object-id, type, pose {...}, ...}
	└── faces
	    └── face2 {handle, sightings, face-id, name, expression, ...}

# Usage

	mem := memory.New()
	world := sim.NewWorld(sim.Scenario{})

	bridge, err := wmbridge.New(mem, world, world,
		wmbridge.WithLogger(slog.Default()),
		wmbridge.WithUnits(wmbridge.UnitsMillimeters),
	)
	if err != nil {
		log.Fatal(err)
	}

	for {
		if err := bridge.InputPhase(ctx); err != nil {
			log.Fatal(err)
		}
		commands := decide(mem) // the reasoning step
		if err := bridge.OutputPhase(ctx, commands); err != nil {
			log.Fatal(err)
		}
	}

pkg/runner packages this loop with a period, signal handling and a
ReasoningEngine port.
*/
package wmbridge

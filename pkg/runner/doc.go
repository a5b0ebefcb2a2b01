/*
Package runner drives a bridge through decision cycles.

Each cycle runs the bridge's input phase, asks a reasoning engine for the
commands it placed on the output link, and hands them to the output phase.
The loop ends when the context is cancelled, a cycle limit is reached, or the
engine returns ErrHalt and the remaining actions have resolved. Pending
actions are stopped on the way out.

ScriptedEngine is a reasoning engine that replays a YAML script:

	steps:
	  - verb: drive-forward
	    params: {distance: 100, speed: 50}
	  - cycle: 4
	    verb: pick-up-object
	    params: {object-id: obj3}

# Usage

	signals := runner.NewSignalManager(context.Background())
	defer signals.Stop()

	r := runner.NewRunner(bridge, runner.NewScriptedEngine(script, place),
		runner.WithPeriod(100*time.Millisecond),
	)
	if _, err := r.Run(signals.Context()); err != nil {
		log.Fatal(err)
	}
*/
package runner

// Package sim provides a simulated robot and perception source.
//
// A World holds a robot state and the objects and faces in view. Robot
// operations return actions that finish after a configured number of
// completion checks and then apply their effect to the world (driving moves
// the pose, picking up an object sets the carrying fields). Any operation can
// be scripted to fail, either at start or on completion.
package sim

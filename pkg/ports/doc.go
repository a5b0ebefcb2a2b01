/*
Package ports defines the driving and driven ports (interfaces) of the bridge.

These interfaces decouple the synchronization core from the working memory
implementation, the robot, the sensor subsystem and persistence.

# Key Interfaces

  - WorkingMemory / CommandNode: the symbolic tree and the commands placed on it.
  - Robot / Action: starting and polling asynchronous robot operations.
  - Perception: pull-based snapshots of the robot and the visible entities.
  - DistributedLocker: cross-replica locking of a synchronization pass.
  - SnapshotStore: persistence of input tree snapshots.
  - Bridge / ReasoningEngine: the cycle loop's two sides.
*/
package ports

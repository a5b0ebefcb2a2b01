/*
Package domain contains the core types of the working memory bridge.

It defines terminal values, the declarative attribute layout (Spec) used to
describe what the working memory should contain, the perceived entities that
are mirrored into it and the command/action vocabulary. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Value: an int, float or string terminal. Booleans are written as 0/1.
  - Spec: a Leaf (getter), StaticLeaf (fixed value) or SubTree (nested attributes).
  - Observation: one visible object or face in a perception snapshot.
  - Handle: the stable symbolic name of a tracked entity.
  - CommandState / ActionStatus: the command lifecycle and its written status.
  - Snapshot: a copy of the input tree for introspection and persistence.
*/
package domain

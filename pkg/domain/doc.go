/*
Package domain contains the core domain models of the threadgraph engine.

It defines the entities threaded through a conversation turn: the role-tagged
Message, the execution-scoped State (transcript plus scratch area), the durable
Checkpoint of a thread, and the closed set of graph nodes and routes. This package
is kept pure and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Message: A single immutable turn of the dialogue (system, user or assistant).
  - State: The runtime snapshot of one execution (Messages + Scratch).
  - Checkpoint: The durable, versioned snapshot of a thread's transcript.
  - NodeID / Route: The tagged node set and the branch names produced by the router.
*/
package domain

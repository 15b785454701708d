/*
Package ports defines the driven ports (interfaces) for the threadgraph engine.

These interfaces decouple the orchestration core from external implementations, allowing
the engine to work with various checkpoint backends, language model providers and lock
managers.

# Key Interfaces

  - CheckpointStore: Persists thread transcripts with compare-and-swap writes.
  - Completer: Produces an assistant reply for a role-tagged prompt.
  - DistributedLocker: Provides distributed locking for concurrent access to one thread.
  - Conversation: The engine surface consumed by inbound adapters (HTTP, MCP, CLI).
*/
package ports

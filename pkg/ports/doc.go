/*
Package ports defines the driven ports (interfaces) for the replyflow engine.

These interfaces decouple the interpreter from storage, model providers and the
surrounding product, so the same engine runs against Redis in production and
in-memory adapters in tests and previews.

# Key Interfaces

  - SessionStore: Persists sessions with an optimistic revision token.
  - MessageStore: Reads conversation history and writes replies.
  - KnowledgeSearcher / KnowledgeLister: Grounding material for AI nodes.
  - EscalationService: Hands a conversation to a human.
  - InstanceRepository / VersionRepository: The deployed automation catalog.
  - DistributedLocker: Serializes turns of one conversation across replicas.
*/
package ports

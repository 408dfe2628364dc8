/*
Package domain contains the core domain models of the replyflow engine.

It defines the compiled automation graph, the conversation session and its
state machine, and the bounded event log. This package is kept pure and free of
I/O, following Hexagonal Architecture principles; persistence and model access
live behind the interfaces in package ports.

# Key Entities

  - TemplateVersion: An immutable, published snapshot of an automation graph.
  - Node: A graph vertex whose behaviour is one of a closed set of NodeConfig variants.
  - Instance: A deployment of a template version with triggers inside a workspace.
  - Session: The execution state of one instance within one conversation.
  - EventLog: A fixed-capacity ring buffer of the most recent session events.
*/
package domain

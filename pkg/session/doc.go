/*
Package session implements session lifecycle and per-conversation serialization.

The Manager keeps one reference-counted mutex per conversation, optionally backed
by a distributed lock so replicas never interleave turns of the same
conversation. Lock keys are prefixed with the channel, so a preview simulation
can never block or be blocked by production traffic.

Sessions are persisted through ports.SessionStore with an optimistic revision:
a Commit of a stale copy fails with domain.ErrRevisionConflict.
*/
package session

/*
Package observability provides tools for monitoring the replyflow interpreter.

Metrics turns lifecycle hooks into Prometheus series. Recorder is an
EventRecorder that logs diagnostic events through slog and forwards them to
an optional sink, with categories that can be switched on and off at runtime.
*/
package observability

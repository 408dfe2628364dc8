package replyflow

// Version is the release of the library and the replyflow binary.
// Release builds override it with -ldflags "-X github.com/aretw0/replyflow.Version=...".
var Version = "0.1.0"

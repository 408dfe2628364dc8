// Package middleware wraps a ports.SessionStore with storage-side behavior:
// encryption of customer data at rest and redacted read views.
package middleware

import "github.com/aretw0/replyflow/pkg/ports"

// Middleware wraps a SessionStore to add behavior.
type Middleware func(ports.SessionStore) ports.SessionStore

// Chain applies mws so that the first one is the outermost.
func Chain(store ports.SessionStore, mws ...Middleware) ports.SessionStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// Package middleware provides SessionPersistence decorators applied before
// session data reaches a store.
package middleware

import "github.com/aretw0/cadence/pkg/ports"

// Middleware wraps a SessionPersistence to add behavior.
type Middleware func(ports.SessionPersistence) ports.SessionPersistence

// Chain applies middlewares so the first one listed is the outermost.
func Chain(store ports.SessionPersistence, mws ...Middleware) ports.SessionPersistence {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

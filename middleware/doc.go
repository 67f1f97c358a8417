// Package middleware implements the request-wrapping interception
// contract shared by the platform's cross-cutting concerns, and the
// layered-memory middleware that is the heart of this module.
//
// A Middleware wraps a Handler; the Chain composes them so the first
// registered middleware sees the request first. The memory middleware
// injects assembled memory context into each outgoing request's system
// instructions and harvests new content from the completed exchange.
package middleware

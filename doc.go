// Package social implements the social-graph core of an instant-messaging
// backend: friend-request lifecycle, relationship groups, and the
// in-memory auto-block manager that guards the request path.
//
// The package does not talk to a wire protocol, a specific document store,
// or an ID generator directly — those are named as external collaborators
// (the store interfaces, IDGenerator, TaskScheduler) and supplied by one of the adapters
// packages, or by a caller's own implementation.
package social

package core

import "context"

// DefaultPriority is the priority used for reminder alerts.
const DefaultPriority = 2

// Notification is a user-visible alert. ID lets the host coalesce or replace
// earlier alerts with the same identifier.
type Notification struct {
	ID       string
	Title    string
	Message  string
	Priority int
}

// Sink presents notifications. Failures are never fatal to the caller.
type Sink interface {
	Present(ctx context.Context, n Notification) error
}

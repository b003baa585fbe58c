package queue

import "context"

// Client enqueues analysis jobs for the worker.
type Client interface {
	Send(ctx context.Context, msg Message) error
}

// ClientFunc lets a plain function act as a Client.
type ClientFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f ClientFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

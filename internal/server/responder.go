package server

import (
	"context"
)

type pollResult struct {
	status int
	body   []byte
}

// pollResponder hands a subscription's outcome back to the goroutine that
// owns the connection.
type pollResponder struct {
	ctx    context.Context
	result chan pollResult
}

func newPollResponder(ctx context.Context) *pollResponder {
	return &pollResponder{
		ctx:    ctx,
		result: make(chan pollResult, 1),
	}
}

func (p *pollResponder) Context() context.Context {
	return p.ctx
}

func (p *pollResponder) Respond(status int, body []byte) {
	select {
	case p.result <- pollResult{status: status, body: body}:
	default:
	}
}

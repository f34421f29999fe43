package exchange

import "errors"

var (
	ErrChannelExists     = errors.New("channel already exists")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrWrongAnswer       = errors.New("wrong answer")
	ErrUnknownSubscriber = errors.New("unknown subscriber")
)

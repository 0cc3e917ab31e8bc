package event

import "errors"

var (
	ErrMissingID       = errors.New("event: missing id")
	ErrMissingCategory = errors.New("event: missing category")
	ErrMissingSource   = errors.New("event: missing source")
)

package model

import "errors"

// Error taxonomy shared by the model, the store and the adapters.
var (
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("no free address left in subnet")
	ErrParse            = errors.New("malformed server config")
	ErrIO               = errors.New("config i/o failure")
	ErrExists           = errors.New("server config already exists")
)

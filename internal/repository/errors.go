package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrInvalidArgument indicates the store rejected malformed input.
var ErrInvalidArgument = errors.New("repository: invalid argument")

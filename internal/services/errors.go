package services

import "errors"

// ErrInvalidArgument is returned before any storage call when a request is malformed.
var ErrInvalidArgument = errors.New("invalid argument")

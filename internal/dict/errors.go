package dict

import "errors"

// ErrLimitExceeded indicates a set-limit or repeat call would cross the
// current buffer bound.
var ErrLimitExceeded = errors.New("dict: limit exceeded")

// ErrBadDistance indicates a back-reference distance exceeds the current
// write offset.
var ErrBadDistance = errors.New("dict: distance exceeds offset")

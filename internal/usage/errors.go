package usage

import "errors"

// ErrInvalidUser is returned when no user id is supplied.
var ErrInvalidUser = errors.New("user id is required")

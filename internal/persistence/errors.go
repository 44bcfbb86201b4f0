package persistence

import "errors"

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("not found")

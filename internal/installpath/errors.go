package installpath

import "errors"

// ErrNotFound is returned when a file cannot be located in any search location.
var ErrNotFound = errors.New("install file not found")

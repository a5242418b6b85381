package projections

import "errors"

// errCountSkipped marks a count that depends on another count that failed.
var errCountSkipped = errors.New("dependent count unavailable")

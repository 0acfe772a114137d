package distrib

import "errors"

// Sentinel kinds for the configuration error taxonomy. Callers match with
// errors.Is; the wrapped message carries the human-readable cause.
var (
	// ErrEnvVarUnset reports an expression referring to an environment
	// variable that is not set.
	ErrEnvVarUnset = errors.New("environment variable unset")
	// ErrParse reports an environment variable that is set but not
	// parsable as the expected numeric type.
	ErrParse = errors.New("invalid numeric value")
	// ErrBadDistribution reports a distribution whose parameters are
	// unsatisfiable, such as a non-positive standard deviation.
	ErrBadDistribution = errors.New("invalid distribution")
)

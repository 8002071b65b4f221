package circuitbreaker

import (
	"fmt"

	"github.com/karimd18/project-C-case-study/errors"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call. It
// wraps errors.ErrOverloaded so callers map it to a 503.
var ErrCircuitOpen = fmt.Errorf("%w: circuit breaker is open", errors.ErrOverloaded)

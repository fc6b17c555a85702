package governor

import (
	"fmt"
	"strings"

	"github.com/san-kum/nmpc/internal/dynamo"
)

// Policy chooses the command emitted while solves keep failing.
type Policy int

const (
	// PolicyStop emits zero on every failure.
	PolicyStop Policy = iota
	// PolicyDecay scales the last good command linearly to zero over K
	// failures.
	PolicyDecay
	// PolicyHold repeats the last good command for K-1 failures.
	PolicyHold
)

func (p Policy) String() string {
	switch p {
	case PolicyStop:
		return "stop"
	case PolicyDecay:
		return "decay"
	case PolicyHold:
		return "hold"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stop":
		return PolicyStop, nil
	case "decay":
		return PolicyDecay, nil
	case "hold":
		return PolicyHold, nil
	default:
		return 0, fmt.Errorf("%w: unknown fault policy %q", dynamo.ErrConfigInvalid, s)
	}
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// fallback is the command for the given consecutive failure count, which is
// always below k.
func (p Policy) fallback(last dynamo.Control, failures, k int) dynamo.Control {
	if last == nil {
		return nil
	}
	switch p {
	case PolicyDecay:
		return last.Scale(1 - float64(failures)/float64(k))
	case PolicyHold:
		return last.Clone()
	default:
		return nil
	}
}

package optim

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/san-kum/nmpc/internal/config"
)

// SetWeight writes one cost weight addressed by name: a matrix (q, qf, r
// or s) followed by a diagonal index, e.g. "q2" or "r0". A bare matrix name
// sets every diagonal entry.
func SetWeight(cfg *config.Config, name string, v float64) error {
	var target *[]float64
	prefix := strings.TrimRightFunc(strings.ToLower(name), func(r rune) bool { return r >= '0' && r <= '9' })
	switch prefix {
	case "q":
		target = &cfg.Weights.Q
	case "qf":
		target = &cfg.Weights.Qf
	case "r":
		target = &cfg.Weights.R
	case "s":
		target = &cfg.Weights.S
	default:
		return errors.Errorf("unknown weight %q", name)
	}

	suffix := name[len(prefix):]
	if suffix == "" {
		for i := range *target {
			(*target)[i] = v
		}
		return nil
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil {
		return errors.Wrapf(err, "weight %q", name)
	}
	if idx < 0 || idx >= len(*target) {
		return errors.Errorf("weight %q: index out of range for %d entries", name, len(*target))
	}
	(*target)[idx] = v
	return nil
}

// Apply returns a copy of base with every weight in params set.
func Apply(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range params {
		if err := SetWeight(cfg, name, v); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

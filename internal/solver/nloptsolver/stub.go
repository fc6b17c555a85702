//go:build !nlopt

package nloptsolver

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/nmpc/internal/solver"
)

// Available reports whether this build links NLopt.
const Available = false

// New is not supported without the nlopt build tag.
func New(settings solver.Settings, logger *zap.SugaredLogger) (solver.Solver, error) {
	return nil, errors.New("slsqp backend requires building with -tags nlopt")
}

package validation

import (
	"io"

	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
)

// NewFromConfig builds the validator chain: the built-in manifest check
// first, then the external validator when one is configured.
func NewFromConfig(cfg *types.Config, projectRoot string, out io.Writer, log logger.Logger) (interfaces.Validator, error) {
	mv, err := NewManifestValidator(cfg.Paths.Manifest, out)
	if err != nil {
		return nil, err
	}

	chain := Chain{mv}
	if len(cfg.Validator.Command) > 0 {
		chain = append(chain, NewCommandValidator(cfg.Validator.Command, projectRoot, cfg.Validator.Environment, out, log))
	}
	return chain, nil
}

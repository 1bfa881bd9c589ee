// Package validation runs component set validators.
//
// Validators print their diagnostics to the console and return a verdict.
// The pipeline consumes them in two ways: Check logs the verdict and never
// fails (dev mode), Require turns a failing verdict into ErrValidationFailed
// (one-shot build).
package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cspack/cspack/pkg/interfaces"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
)

// ErrValidationFailed is returned by Require when the verdict is negative
var ErrValidationFailed = errors.New("component validation failed, see the output above for details")

// Service binds a validator to the component folder
type Service struct {
	validator interfaces.Validator
	folder    string
	logger    logger.Logger
}

// NewService creates a validation service
func NewService(v interfaces.Validator, folder string, log logger.Logger) *Service {
	return &Service{
		validator: v,
		folder:    folder,
		logger:    log.WithStage(types.StageValidate),
	}
}

// Folder returns the validated folder
func (s *Service) Folder() string {
	return s.folder
}

// Check runs the validator and only logs the outcome
func (s *Service) Check(ctx context.Context) bool {
	log := logger.WithContext(ctx, s.logger)
	start := time.Now()

	ok, err := s.validator.Validate(ctx, s.folder)
	switch {
	case err != nil && ctx.Err() != nil:
		log.Debug("Validation interrupted", logger.WithError(err))
		return false
	case err != nil:
		log.Error("Validator could not run", logger.WithError(err))
		return false
	case !ok:
		log.Warn("Validation failed", logger.WithField("folder", s.folder))
	default:
		log.Success(fmt.Sprintf("Validation passed in %s", time.Since(start).Round(time.Millisecond)))
	}
	return ok
}

// Require runs the validator and fails when the verdict is negative
func (s *Service) Require(ctx context.Context) error {
	ok, err := s.validator.Validate(ctx, s.folder)
	if err != nil {
		return fmt.Errorf("failed to run validator: %w", err)
	}
	if !ok {
		return ErrValidationFailed
	}
	logger.WithContext(ctx, s.logger).Success("Validation passed")
	return nil
}

// Chain runs validators in order and stops at the first negative verdict
type Chain []interfaces.Validator

// Validate implements interfaces.Validator
func (c Chain) Validate(ctx context.Context, folder string) (bool, error) {
	for _, v := range c {
		ok, err := v.Validate(ctx, folder)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

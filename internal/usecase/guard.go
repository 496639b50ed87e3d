package usecase

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

// guard runs deferred at the top of every public operation. It turns a panic
// into ErrExternalService and wraps errors that match none of the four kinds,
// so callers only ever see a domain error kind.
func guard(logger *zap.Logger, op string, errp *error) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered", zap.String("operation", op), zap.Any("panic", r))
		*errp = fmt.Errorf("%w: internal error in %s", domain.ErrExternalService, op)
		return
	}
	if *errp != nil && domain.Kind(*errp) == "" {
		*errp = fmt.Errorf("%w: %s: %v", domain.ErrExternalService, op, *errp)
	}
}

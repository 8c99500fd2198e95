package decision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/afroash/agristore/internal/models"
)

// ErrNoOptionsAvailable is returned when every storage method was either
// unsuitable or failed evaluation.
var ErrNoOptionsAvailable = errors.New("no storage options available")

// ValidationError carries every violated input check.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

// StrategyEvaluationWarning records a storage method that failed and was
// left out of the decision.
type StrategyEvaluationWarning struct {
	Method models.StorageMethod
	Err    error
}

func (w StrategyEvaluationWarning) Error() string {
	return fmt.Sprintf("evaluating %s: %v", w.Method, w.Err)
}

func (w StrategyEvaluationWarning) Unwrap() error {
	return w.Err
}

package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pageza/alchemorsel-v2/recommender/internal/cascade"
	"github.com/pageza/alchemorsel-v2/recommender/internal/modelstore"
)

var (
	// ErrNoCandidate means no recipe satisfies the request. With purchase
	// disallowed this includes "nothing can be cooked from the pantry".
	ErrNoCandidate = cascade.ErrNoCandidate
	// ErrBudgetExceeded is returned only when every ranked candidate costs
	// more than the budget
	ErrBudgetExceeded = errors.New("every candidate exceeds the budget")
	// ErrModelUnavailable is recovered inside Generate by falling back to
	// the heuristic scorer
	ErrModelUnavailable = errors.New("no usable trained model")
	// ErrInsufficientData aborts training on a corpus that is too small
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrSerialization is a failed model save; no row is activated
	ErrSerialization = modelstore.ErrSerialization
	// ErrTrainingInProgress rejects a second concurrent training run
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrModelNotFound is an unknown model id
	ErrModelNotFound = modelstore.ErrModelNotFound
)

// ValidationError is a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every rejected field of one request
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}

// As lets errors.As find the first field error
func (e ValidationErrors) As(target any) bool {
	if t, ok := target.(*ValidationError); ok && len(e) > 0 {
		*t = e[0]
		return true
	}
	return false
}

// fromValidator converts go-playground field errors, keyed by json name
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " items"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

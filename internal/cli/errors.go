package cli

import (
	"errors"

	"github.com/roach88/riskctl/internal/bundle"
	"github.com/roach88/riskctl/internal/config"
	"github.com/roach88/riskctl/internal/registry"
)

// errorCode maps a domain error onto a JSON error code.
func errorCode(err error) string {
	var (
		verrs bundle.ValidationErrors
		verr  *bundle.ValidationError
	)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, registry.ErrInvalid), errors.Is(err, config.ErrInvalid):
		return CodeInvalid
	case errors.As(err, &verrs), errors.As(err, &verr), errors.Is(err, bundle.ErrDuplicateID):
		return CodeBundle
	default:
		return CodeStore
	}
}

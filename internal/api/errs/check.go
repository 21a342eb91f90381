package errs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	mu       sync.RWMutex
	tagFuncs = map[string]func(string) error{}
)

// RegisterValidation adds a custom string tag to the request validator. The
// error returned by fn becomes the message reported to the client.
func RegisterValidation(tag string, fn func(s string) error) error {
	mu.Lock()
	defer mu.Unlock()

	if _, ok := tagFuncs[tag]; ok {
		return nil
	}
	if err := validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String()) == nil
	}); err != nil {
		return fmt.Errorf("registering %s: %w", tag, err)
	}
	tagFuncs[tag] = fn
	return nil
}

// Check validates the provided model against its declared tags and returns
// an error describing the first failing field.
func Check(val any) error {
	err := validate.Struct(val)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fe := verrs[0]
	mu.RLock()
	fn, ok := tagFuncs[fe.Tag()]
	mu.RUnlock()
	if ok {
		if s, isString := fe.Value().(string); isString {
			if ferr := fn(s); ferr != nil {
				return ferr
			}
		}
	}

	field := strings.ToLower(fe.Field())
	if fe.Tag() == "required" {
		return fmt.Errorf("missing %s", field)
	}
	return fmt.Errorf("invalid %s", field)
}

// Package validation checks tagged structs behind a single shared
// validator instance. Field names in the result come from json tags, so
// violations line up with the wire form users actually typed.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	instance *validator.Validate
	once     sync.Once
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New()
		instance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return instance
}

// Validate evaluates input's validate tags and returns the violations
// keyed by field name, nil when input is valid. messages overrides the
// default text per "<field>.<tag>" key.
//
// Passing something that is not a struct is a programmer error and panics.
func Validate(input any, messages map[string]string) map[string][]string {
	err := get().Struct(input)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		panic("validation: Validate called with non-struct input: " + err.Error())
	}

	out := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		msg := messages[field+"."+fe.Tag()]
		if msg == "" {
			msg = defaultMessage(fe)
		}
		out[field] = append(out[field], msg)
	}
	return out
}

func defaultMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	}
	return fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())
}

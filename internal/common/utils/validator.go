// internal/common/utils/validator.go
// Struct-tag validation for request DTOs.

package utils

import (
    "errors"
    "fmt"
    "strings"

    "github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateStruct runs the DTO's validate tags and collapses any failures
// into a single readable error.
func ValidateStruct(s interface{}) error {
    err := validate.Struct(s)
    if err == nil {
        return nil
    }
    var fieldErrs validator.ValidationErrors
    if !errors.As(err, &fieldErrs) {
        return err
    }
    msgs := make([]string, 0, len(fieldErrs))
    for _, fe := range fieldErrs {
        msgs = append(msgs, describeFieldError(fe))
    }
    return errors.New(strings.Join(msgs, ", "))
}

func describeFieldError(fe validator.FieldError) string {
    switch fe.Tag() {
    case "required":
        return fmt.Sprintf("%s is required", fe.Field())
    case "oneof":
        return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
    case "min":
        return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
    case "max":
        return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
    default:
        return fmt.Sprintf("%s is invalid", fe.Field())
    }
}

package application

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var inputValidator = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags of input and records failures under
// snake_case field names.
func validateStruct(input any, vErr *ValidationError) {
	err := inputValidator.Struct(input)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		vErr.add("input", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		vErr.add(fieldName(fe), tagMessage(fe))
	}
}

func fieldName(fe validator.FieldError) string {
	// Namespace is "Struct.Field[0]"; keep the part after the struct name.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return snakeCase(ns)
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with":
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "unique":
		return "must not contain duplicates"
	}
	return "is invalid"
}

var acronyms = strings.NewReplacer("IDs", "Ids", "ID", "Id")

// snakeCase turns a validator namespace such as "SessionIDs[0]" into "session_ids[0]".
func snakeCase(value string) string {
	value = acronyms.Replace(value)
	var b strings.Builder
	var prev rune
	for _, r := range value {
		if unicode.IsUpper(r) {
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

// Package apperr holds the error kinds shared by the presence and unlock
// services and their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Field errors are reported under the request's JSON names.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindValidation
	KindTransient
)

type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound names the missing entity and the key used to look it up.
func NotFound(entity, key string, value any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Fields:  map[string]string{key: fmt.Sprint(value)},
	}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// Transient wraps a storage failure on the request path.
func Transient(op string, err error) *Error {
	return &Error{Kind: KindTransient, Message: op + " failed", Err: err}
}

func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

func Status(err error) int {
	var ae *Error
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body and aborts the request.
func Respond(c *gin.Context, err error) {
	body := gin.H{"error": err.Error()}
	var ae *Error
	if errors.As(err, &ae) {
		body["error"] = ae.Message
		if len(ae.Fields) > 0 {
			body["fields"] = ae.Fields
		}
	}
	c.AbortWithStatusJSON(Status(err), body)
}

// FromBinding converts a gin binding error into a field-level validation error.
func FromBinding(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
		return Validation(fields)
	}
	return Validation(map[string]string{"body": err.Error()})
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must have at least " + fe.Param() + " items"
	case "ip":
		return "must be a valid IP address"
	case "mac":
		return "must be a valid MAC address"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

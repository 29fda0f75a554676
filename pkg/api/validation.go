package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/wms-platform/distribution-service/pkg/errors"
)

// BindAndValidate binds the JSON body into obj and runs its binding tags
func BindAndValidate(c *gin.Context, obj any) *apperrors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		return bindingError("invalid request body", err)
	}
	return nil
}

// BindQueryAndValidate binds query parameters into obj and runs its binding tags
func BindQueryAndValidate(c *gin.Context, obj any) *apperrors.AppError {
	if err := c.ShouldBindQuery(obj); err != nil {
		return bindingError("invalid query parameters", err)
	}
	return nil
}

func bindingError(prefix string, err error) *apperrors.AppError {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string, len(validationErrors))
		for _, fieldError := range validationErrors {
			fields[fieldPath(fieldError)] = errorMessage(fieldError)
		}
		return apperrors.ErrValidationWithFields("validation failed", fields)
	}
	return apperrors.ErrBadRequest(fmt.Sprintf("%s: %v", prefix, err))
}

// fieldPath turns "CreateDistributionRequest.Items[0].ProductID" into "items[0].productID"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}

	parts := strings.Split(ns, ".")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToLower(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, ".")
}

func errorMessage(fe validator.FieldError) string {
	field := fieldPath(fe)

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind().String() == "slice" {
			return fmt.Sprintf("%s must contain at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "dive":
		return fmt.Sprintf("%s is invalid", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

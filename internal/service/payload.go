package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/target/jobstream/internal/domain/model"
	apperrors "github.com/target/jobstream/internal/errors"
)

// validate is shared by every service; validator caches struct metadata per type.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodePayload strictly decodes raw into dst and runs struct validation.
// Any failure is a validation AppError so callers can reject before creating state.
func decodePayload(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return apperrors.ValidationField("payload", "payload is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.ValidationField("payload", "malformed payload: "+err.Error())
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperrors.ValidationField(fe.Namespace(), fieldMessage(fe))
	}
	return apperrors.Validation(err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

// payloadFor returns an empty typed payload for jobType.
func payloadFor(jobType model.JobType) (any, error) {
	switch jobType {
	case model.JobTypeChat:
		return &model.ChatPayload{}, nil
	case model.JobTypeWhatsAppChat:
		return &model.WhatsAppPayload{}, nil
	case model.JobTypePerformanceReport:
		return &model.PerformanceReportPayload{}, nil
	case model.JobTypeSOValidation:
		return nil, apperrors.ValidationField("job_type", "so_validation requests are submitted to /so/validate")
	}
	return nil, apperrors.ValidationField("job_type", fmt.Sprintf("unknown job_type %q", jobType))
}

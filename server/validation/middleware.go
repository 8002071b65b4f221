// Package validation decodes and checks request bodies.
package validation

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/karimd18/project-C-case-study/config"
	"github.com/karimd18/project-C-case-study/errors"
)

// maxBodyBytes bounds request bodies. Strategies and raw text are small;
// markup never travels inbound.
const maxBodyBytes = 1 << 20

// ValidationErrorDetail describes one rejected field.
type ValidationErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// inputTexter is implemented by requests whose text is sent to the model.
type inputTexter interface {
	InputText() string
}

// Validator decodes JSON bodies into request types and validates them.
type Validator struct {
	validate *validator.Validate
	counter  *TokenCounter
	logger   *zap.Logger
}

// New creates a Validator. A token counter is built only when
// cfg.MaxInputTokens is positive.
func New(cfg config.LLMConfig, logger *zap.Logger) (*Validator, error) {
	var counter *TokenCounter
	if cfg.MaxInputTokens > 0 {
		var err error
		counter, err = NewTokenCounter(cfg.TokenEncoding, cfg.MaxInputTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token counter: %w", err)
		}
	}
	return NewWithCounter(counter, logger), nil
}

// NewWithCounter creates a Validator with an explicit counter, which may
// be nil.
func NewWithCounter(counter *TokenCounter, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v, counter: counter, logger: logger}
}

// Decode reads r's JSON body into dst and validates it. Failures are
// returned as *errors.ServiceError: 400 for a malformed body, 422 for
// content that fails validation or the token limit.
func (v *Validator) Decode(r *http.Request, dst interface{}) error {
	requestID := r.Header.Get("X-Request-ID")

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return errors.NewValidationError(requestID, "Invalid or missing Content-Type header", map[string]interface{}{
				"fields": []ValidationErrorDetail{{
					Field:   "header:Content-Type",
					Message: "Content-Type must be application/json",
					Code:    "invalid_content_type",
				}},
			})
		}
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		v.logger.Debug("request body rejected", zap.Error(err), zap.String("request_id", requestID))
		return errors.NewValidationError(requestID, "Invalid request format", map[string]interface{}{
			"fields": []ValidationErrorDetail{{
				Field:   "body",
				Message: err.Error(),
				Code:    "invalid_json",
			}},
		})
	}

	if err := v.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return errors.NewInternalError(requestID, err)
		}
		details := make([]ValidationErrorDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, ValidationErrorDetail{
				Field:   fieldPath(fe.Namespace()),
				Message: describe(fe),
				Code:    fe.Tag() + "_validation_failed",
			})
		}
		return errors.NewError(errors.ValidationError, "Request validation failed", http.StatusUnprocessableEntity,
			requestID, map[string]interface{}{"fields": details}, nil)
	}

	if v.counter != nil {
		if in, ok := dst.(inputTexter); ok {
			if err := v.counter.ValidateTokens(in.InputText()); err != nil {
				return errors.NewError(errors.ValidationError, "Token limit exceeded", http.StatusUnprocessableEntity,
					requestID, map[string]interface{}{
						"fields": []ValidationErrorDetail{{
							Field:   "rawText",
							Message: err.Error(),
							Code:    "token_limit_exceeded",
						}},
						"max_input_tokens": v.counter.Max(),
					}, nil)
			}
		}
	}
	return nil
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field '%s' failed '%s' validation", fe.Field(), fe.Tag())
	}
}

// Package processing recovers structured payloads from LLM text responses.
//
// Models asked for JSON answer in one of three shapes: a fenced ```json
// block, an object embedded in prose, or bare JSON. Extract picks the
// candidate text; Decode parses it and checks the result has the fields the
// caller's struct tags require. Extraction is deliberately permissive, so
// Decode is the only validation gate and every failure it reports wraps
// errors.ErrDecode.
package processing

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/karimd18/project-C-case-study/errors"
)

const (
	jsonFence = "```json"
	fence     = "```"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Extract returns the JSON candidate contained in text:
//
//  1. With a ```json fence: everything after the marker up to the last ```
//     in the text, or to the end of the text when no fence follows.
//  2. Otherwise, from the first '{' to the last '}' inclusive, when a '}'
//     follows the first '{'.
//  3. Otherwise text unchanged.
//
// Brackets are not balanced and nothing is trimmed.
func Extract(text string) string {
	if start := strings.Index(text, jsonFence); start != -1 {
		content := start + len(jsonFence)
		if end := strings.LastIndex(text, fence); end > content {
			return text[content:end]
		}
		return text[content:]
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first != -1 && last > first {
		return text[first : last+1]
	}
	return text
}

// Decode extracts the JSON candidate from text, unmarshals it into v and,
// when v points to a struct, validates its `validate` tags.
func Decode(text string, v interface{}) error {
	candidate := Extract(text)
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && rv.Elem().Kind() == reflect.Struct {
		if err := validate.Struct(v); err != nil {
			return fmt.Errorf("%w: %s", errors.ErrDecode, describe(err))
		}
	}
	return nil
}

// describe flattens validator errors into "field: tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return "missing or invalid fields: " + strings.Join(parts, ", ")
}

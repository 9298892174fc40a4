package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator"
	"github.com/meghashyamc/aleph/logger"
)

type Validator struct {
	validator                *validator.Validate
	logger                   logger.Logger
	tagValidationDetailsOnce sync.Once
	tagValidationDetailsMap  map[string]tagValidationDetails
}

type tagValidationDetails struct {
	validatorFunc validator.Func
	err           error
}

func New(logger logger.Logger) (*Validator, error) {
	validator := &Validator{validator: validator.New(), logger: logger}
	validator.validator.RegisterTagNameFunc(useJSONFieldNames)
	if err := validator.registerCustomValidatorsForTags(); err != nil {
		return nil, err
	}

	return validator, nil
}

func (v *Validator) Validate(i any) error {

	if err := v.validator.Struct(i); err != nil {
		v.logger.Warn("validation failed", "err", err.Error())
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) && len(validationErrs) > 0 {

			tagValidationDetails, ok := v.getTagValidationDetails()[validationErrs[0].Tag()]
			if ok {
				return tagValidationDetails.err
			}

			switch validationErrs[0].Tag() {
			case "required":
				return fmt.Errorf("missing required field '%s'", validationErrs[0].Field())

			case "min", "max":
				return fmt.Errorf("value or length of field '%s' is not in the expected range", validationErrs[0].Field())

			}
		}
		return err
	}
	return nil
}
func (v *Validator) getTagValidationDetails() map[string]tagValidationDetails {
	v.tagValidationDetailsOnce.Do(func() {
		v.tagValidationDetailsMap = map[string]tagValidationDetails{
			"valid_path":  {validatorFunc: v.isValidPath, err: errors.New("invalid path")},
			"valid_query": {validatorFunc: v.isValidQuery, err: errors.New("invalid query")},
			"valid_scope": {validatorFunc: v.isValidScope, err: errors.New("invalid scope name")},
		}
	})
	return v.tagValidationDetailsMap
}

func (v *Validator) registerCustomValidatorsForTags() error {

	tagValidationDetailsMap := v.getTagValidationDetails()

	for tag, tagValidationDetails := range tagValidationDetailsMap {
		if err := v.validator.RegisterValidation(tag, tagValidationDetails.validatorFunc); err != nil {
			v.logger.Error("failed to register customer validator function", "err", err.Error())
			return err
		}
	}
	return nil
}

func useJSONFieldNames(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" {
		tag = fld.Tag.Get("form")
	}
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// isValidPath accepts absolute paths only. Whether the path exists is decided by the caller, which
// reports a missing path differently from a malformed one.
func (v *Validator) isValidPath(fl validator.FieldLevel) bool {
	inputPath := fl.Field().String()
	if strings.TrimSpace(inputPath) == "" {
		v.logger.Warn("validation path is empty", "path", inputPath)
		return false
	}

	if strings.Contains(inputPath, "\x00") {
		v.logger.Warn("validation path has null byte", "path", inputPath)
		return false
	}

	if !filepath.IsAbs(inputPath) {
		v.logger.Warn("validation path is not absolute", "path", inputPath)
		return false
	}

	return true
}

// isValidQuery lets empty and blank queries through; they simply have no results.
func (v *Validator) isValidQuery(fl validator.FieldLevel) bool {
	query := fl.Field().String()
	if !utf8.ValidString(query) {
		v.logger.Warn("query is not valid utf-8")
		return false
	}

	return true
}

func (v *Validator) isValidScope(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if strings.TrimSpace(name) == "" {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		v.logger.Warn("scope name contains a separator", "scope", name)
		return false
	}

	return true
}

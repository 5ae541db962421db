// Package validator wraps the go-playground/validator with English error messages.
// Field names in messages are taken from the "mapstructure" tag, so they match the configuration keys.
package validator

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"

	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const nestedName = "__nested__"

type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

type Rule struct {
	Tag  string
	Func validator.FuncCtx
	// ErrorMsg is the translation, for example "{0} must be a valid value".
	ErrorMsg string
}

func New(rules ...Rule) *Validator {
	v := &Validator{validate: validator.New()}

	// Register default EN translator
	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		panic(errors.New("en translator was not found"))
	}
	if err := enTranslation.RegisterDefaultTranslations(v.validate, translator); err != nil {
		panic(errors.Errorf("translator was not registered: %w", err))
	}
	v.translator = translator

	// Register custom rules
	for _, rule := range rules {
		v.registerRule(rule)
	}

	// Use "mapstructure" field name in error messages.
	// Set "__nested__" name for squashed fields, so they can be removed from the error namespace.
	v.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		tag, found := field.Tag.Lookup("mapstructure")
		name, opts, _ := strings.Cut(tag, ",")
		switch {
		case found && name == "" && opts == "squash":
			return nestedName
		case !found && field.Anonymous:
			return nestedName
		case name == "" || name == "-":
			return field.Name
		default:
			return name
		}
	})

	return v
}

// Validate validates a struct or items of a slice.
func (v *Validator) Validate(ctx context.Context, value any) error {
	return v.ValidateCtx(ctx, value, "")
}

// ValidateCtx validates the value, the namespace is used as the prefix of field names.
func (v *Validator) ValidateCtx(ctx context.Context, value any, namespace string) error {
	var err error
	if reflect.Indirect(reflect.ValueOf(value)).Kind() == reflect.Struct {
		err = v.validate.StructCtx(ctx, value)
	} else {
		err = v.validate.VarCtx(ctx, value, "dive")
	}

	var validationErrs validator.ValidationErrors
	switch {
	case err == nil:
		return nil
	case errors.As(err, &validationErrs):
		return v.processErrors(validationErrs, namespace)
	default:
		return err
	}
}

func (v *Validator) registerRule(rule Rule) {
	if err := v.validate.RegisterValidationCtx(rule.Tag, rule.Func); err != nil {
		panic(err)
	}
	if rule.ErrorMsg == "" {
		return
	}

	registerFn := func(ut ut.Translator) error {
		return ut.Add(rule.Tag, rule.ErrorMsg, true)
	}
	translationFn := func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T(rule.Tag, fe.Field())
		return t
	}
	if err := v.validate.RegisterTranslation(rule.Tag, v.translator, registerFn, translationFn); err != nil {
		panic(err)
	}
}

func (v *Validator) processErrors(errs validator.ValidationErrors, prefix string) error {
	result := errors.NewMultiError()
	for _, e := range errs {
		path := processNamespace(e.Namespace())
		if prefix != "" {
			path = strings.TrimSuffix(prefix+"."+path, ".")
		}
		message := strings.TrimPrefix(e.Translate(v.translator), e.Field())
		result.Append(errors.Errorf(`"%s"%s`, path, message))
	}
	return result.ErrorOrNil()
}

// processNamespace removes the root struct name and "__nested__" parts.
func processNamespace(namespace string) string {
	namespace = strings.ReplaceAll(namespace, nestedName+".", "")
	if _, after, found := strings.Cut(namespace, "."); found {
		return after
	}
	return namespace
}

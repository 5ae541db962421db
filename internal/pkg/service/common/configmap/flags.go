package configmap

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/keboola/price-tracker/internal/pkg/utils/errors"
)

const (
	keyTag             = "mapstructure"
	usageTag           = "usage"
	sensitiveTag       = "sensitive"
	tagValuesSeparator = ","
)

// nolint: gochecknoglobals
var durationType = reflect.TypeOf(time.Duration(0))

// field is a leaf of the configuration structure.
type field struct {
	Name      string
	Usage     string
	Sensitive bool
	Value     reflect.Value
}

func MustGenerateFlags(fs *pflag.FlagSet, v any) {
	if err := GenerateFlags(fs, v); err != nil {
		panic(err)
	}
}

// GenerateFlags generates FlagSet from the provided configuration structure.
// Each field tagged by "mapstructure" tag is mapped to a flag, the value of the field is the default value.
// Field can optionally have the "usage" tag.
// Embedded structure must have the ",squash" tag.
func GenerateFlags(fs *pflag.FlagSet, v any) error {
	fields, err := visit(v)
	if err != nil {
		return err
	}

	for _, f := range fields {
		switch value := f.Value.Interface().(type) {
		case time.Duration:
			fs.Duration(f.Name, value, f.Usage)
		case int:
			fs.Int(f.Name, value, f.Usage)
		case int64:
			fs.Int64(f.Name, value, f.Usage)
		case float64:
			fs.Float64(f.Name, value, f.Usage)
		case bool:
			fs.Bool(f.Name, value, f.Usage)
		case string:
			fs.String(f.Name, value, f.Usage)
		case []string:
			fs.StringSlice(f.Name, value, f.Usage)
		default:
			return errors.Errorf(`unexpected type "%T" of the field "%s"`, value, f.Name)
		}
	}
	return nil
}

// SensitiveKeys returns names of the fields tagged by `sensitive:"true"`.
func SensitiveKeys(v any) (map[string]bool, error) {
	fields, err := visit(v)
	if err != nil {
		return nil, err
	}

	out := make(map[string]bool)
	for _, f := range fields {
		if f.Sensitive {
			out[f.Name] = true
		}
	}
	return out, nil
}

func visit(v any) ([]field, error) {
	// Dereference pointer, if any
	value := reflect.ValueOf(v)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}

	// Validate type
	if value.Kind() != reflect.Struct {
		return nil, errors.Errorf(`cannot generate flags from type "%s": it is not a struct or a pointer to a struct`, value.Type().String())
	}

	var out []field
	visitStruct(value, &out)
	return out, nil
}

func visitStruct(value reflect.Value, out *[]field) {
	for i := 0; i < value.NumField(); i++ {
		structField := value.Type().Field(i)
		tag, found := structField.Tag.Lookup(keyTag)
		if !found || !structField.IsExported() {
			continue
		}

		name, opts, _ := strings.Cut(tag, tagValuesSeparator)
		switch {
		case name == "" && opts == "squash" && structField.Type.Kind() == reflect.Struct:
			visitStruct(value.Field(i), out)
		case name == "" || name == "-":
			continue
		default:
			*out = append(*out, field{
				Name:      name,
				Usage:     structField.Tag.Get(usageTag),
				Sensitive: structField.Tag.Get(sensitiveTag) == "true",
				Value:     value.Field(i),
			})
		}
	}
}

package secretbind

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/systmms/kvault/pkg/keyvault"
)

// ValueSource fetches secret values by name. *keyvault.SecretClient
// implements it.
type ValueSource interface {
	GetValuesIfExists(ctx context.Context, names []string, mode keyvault.FetchMode) (map[string]*string, error)
}

var _ ValueSource = (*keyvault.SecretClient)(nil)

// FieldError reports a secret value that could not be converted to its
// field's type. Error omits the underlying message, which may contain the
// secret value; use errors.Unwrap to get it.
type FieldError struct {
	Field  string
	Secret string
	Type   reflect.Type
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("cannot convert secret %q to %s for field %s", e.Secret, e.Type, e.Field)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Deserialize populates a new T using default Options.
func Deserialize[T any](ctx context.Context, src ValueSource) (*T, error) {
	return DeserializeWithOptions[T](ctx, src, &Options{})
}

// DeserializeWithOptions populates a new T from the secrets selected by opts.
// Secrets that do not exist leave their field at the zero value.
func DeserializeWithOptions[T any](ctx context.Context, src ValueSource, opts *Options) (*T, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		return nil, &keyvault.ArgumentError{Param: "T", Message: fmt.Sprintf("%s is a pointer; pass the struct type", t)}
	}
	bindings, err := ResolveBindings(t, opts)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if len(bindings) == 0 {
		return out, nil
	}
	if src == nil {
		return nil, &keyvault.ArgumentError{Param: "src", Message: "must not be nil"}
	}

	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.Secret)
	}
	values, err := src.GetValuesIfExists(ctx, names, keyvault.FetchConcurrent)
	if err != nil {
		return nil, err
	}

	target := reflect.ValueOf(out).Elem()
	for _, b := range bindings {
		value := values[b.Secret]
		if value == nil {
			continue
		}
		field := target.FieldByIndex(b.Index)
		if err := decode(*value, field.Addr().Interface()); err != nil {
			return nil, &FieldError{Field: b.Field, Secret: b.Secret, Type: field.Type(), Err: err}
		}
	}
	return out, nil
}

// decode converts a secret string into the value pointed to by result.
func decode(value string, result any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           result,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			stringToSliceHook(","),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(value)
}

// stringToSliceHook splits a string into trimmed elements for any slice
// target except []byte. Elements are then weakly decoded to the element type.
func stringToSliceHook(sep string) mapstructure.DecodeHookFuncType {
	return func(f, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Slice || t.Elem().Kind() == reflect.Uint8 {
			return data, nil
		}
		raw := data.(string)
		if strings.TrimSpace(raw) == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts, nil
	}
}

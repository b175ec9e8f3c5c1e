package secretbind

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/systmms/kvault/pkg/keyvault"
)

// TagName is the struct tag key read by ResolveBindings.
const TagName = "keyvault"

// Options controls how struct fields map to secret names.
type Options struct {
	// Prefix is prepended to default (field-derived) secret names only.
	Prefix string

	// Names maps a field name to a literal secret name. It takes precedence
	// over a keyvault struct tag; Prefix is not applied.
	Names map[string]string

	// Ignore lists field names that are never read. Ignoring beats Names.
	Ignore []string
}

// Binding ties one struct field to the secret that populates it.
type Binding struct {
	Field  string // Go field name
	Index  []int  // field index for reflect.Value.FieldByIndex
	Secret string // secret name in the vault
}

// SectionPrefix returns the prefix selecting secrets in section,
// e.g. "Db" gives "Db--".
func SectionPrefix(section string) string {
	return keyvault.SectionPrefix(section)
}

// ResolveBindings computes the field-to-secret mapping for struct type t
// (or a pointer to one). Unexported and embedded fields are skipped.
func ResolveBindings(t reflect.Type, opts *Options) ([]Binding, error) {
	if opts == nil {
		return nil, &keyvault.ArgumentError{Param: "opts", Message: "must not be nil"}
	}
	if t == nil {
		return nil, &keyvault.ArgumentError{Param: "type", Message: "must not be nil"}
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, &keyvault.ArgumentError{Param: "type", Message: fmt.Sprintf("%s is not a struct", t)}
	}

	fields := make(map[string]struct{}, t.NumField())
	var bindings []Binding
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		fields[f.Name] = struct{}{}

		secret, ok, err := secretName(f, opts)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		bindings = append(bindings, Binding{Field: f.Name, Index: f.Index, Secret: secret})
	}

	for field := range opts.Names {
		if _, ok := fields[field]; !ok {
			return nil, &keyvault.ArgumentError{Param: "opts.Names", Message: fmt.Sprintf("%s has no exported field %q", t, field)}
		}
	}
	for _, field := range opts.Ignore {
		if _, ok := fields[field]; !ok {
			return nil, &keyvault.ArgumentError{Param: "opts.Ignore", Message: fmt.Sprintf("%s has no exported field %q", t, field)}
		}
	}

	return bindings, nil
}

// secretName resolves one field. ok is false when the field is ignored.
func secretName(f reflect.StructField, opts *Options) (name string, ok bool, err error) {
	tagName, tagOpts := parseTag(f.Tag.Get(TagName))

	if tagName == "-" && len(tagOpts) == 0 {
		return "", false, nil
	}
	if slices.Contains(tagOpts, "ignore") || slices.Contains(opts.Ignore, f.Name) {
		return "", false, nil
	}

	if override, found := opts.Names[f.Name]; found {
		if strings.TrimSpace(override) == "" {
			return "", false, &keyvault.ArgumentError{Param: "opts.Names", Message: fmt.Sprintf("empty secret name for field %q", f.Name)}
		}
		return override, true, nil
	}
	if tagName != "" {
		return tagName, true, nil
	}
	return opts.Prefix + f.Name, true, nil
}

func parseTag(tag string) (string, []string) {
	if tag == "" {
		return "", nil
	}
	parts := strings.Split(tag, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts[0], parts[1:]
}

package commands

import (
	"encoding/base64"
	"fmt"
	"sort"

	dserrors "github.com/systmms/kvault/internal/errors"
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// sortedCopy returns a sorted copy of names
func sortedCopy(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

// inputBytes returns the payload given by exactly one of --text or --data.
func inputBytes(text, data string, textSet, dataSet bool) ([]byte, error) {
	switch {
	case textSet && dataSet:
		return nil, dserrors.UserError{Message: "--text and --data are mutually exclusive"}
	case textSet:
		return []byte(text), nil
	case dataSet:
		return decodeFlag("data", data)
	default:
		return nil, dserrors.UserError{
			Message:    "No input given",
			Suggestion: "Pass --text for text or --data for base64-encoded bytes",
		}
	}
}

func decodeFlag(flag, value string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, dserrors.UserError{
			Message:    fmt.Sprintf("Invalid base64 in --%s", flag),
			Suggestion: "Binary arguments (--data, --signature) use standard base64 encoding",
			Err:        err,
		}
	}
	return b, nil
}

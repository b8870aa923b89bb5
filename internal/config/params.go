// Package config handles the training configuration: generic Params, a map[string]string parsed from
// a user's configuration string, and Config, the values the training loop and steps depend on.
package config

import (
	"github.com/pkg/errors"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Params represent generic configuration parameters, keyed by name.
type Params map[string]string

// ParseParams creates Params from a configuration string of the form "key1=value1,key2,key3=value3".
// A key without a value is stored with an empty value, which boolean parameters interpret as true.
// Empty entries (e.g. a trailing ",") are ignored.
func ParseParams(config string) Params {
	params := make(Params)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=") // Only the first "=" separates key and value.
		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return params
}

// Keys returns the sorted keys of the params, used mostly for error messages.
func (p Params) Keys() []string {
	return slices.Sorted(maps.Keys(p))
}

// ParamType enumerates the types of values a Params entry can be parsed to.
type ParamType interface {
	bool | int | float32 | float64 | string
}

// PopParamOr is like GetParamOr, but it also deletes the retrieved parameter from params.
func PopParamOr[T ParamType](params Params, key string, defaultValue T) (T, error) {
	value, err := GetParamOr(params, key, defaultValue)
	if err != nil {
		return value, err
	}
	delete(params, key)
	return value, nil
}

// GetParamOr parses the parameter to the type of defaultValue if the key is present, or returns
// defaultValue if not.
//
// For bool types, a key without a value is interpreted as true.
func GetParamOr[T ParamType](params Params, key string, defaultValue T) (T, error) {
	value, exists := params[key]
	if !exists {
		return defaultValue, nil
	}
	var parsed any
	var err error
	switch any(defaultValue).(type) {
	case string:
		parsed = value
	case int:
		if value == "" {
			return defaultValue, nil
		}
		parsed, err = strconv.Atoi(value)
	case float32:
		if value == "" {
			return defaultValue, nil
		}
		var f float64
		f, err = strconv.ParseFloat(value, 32)
		parsed = float32(f)
	case float64:
		if value == "" {
			return defaultValue, nil
		}
		parsed, err = strconv.ParseFloat(value, 64)
	case bool:
		switch strings.ToLower(value) {
		case "", "true", "1":
			parsed = true
		case "false", "0":
			parsed = false
		default:
			err = errors.New("invalid bool")
		}
	}
	if err != nil {
		return defaultValue, errors.Wrapf(err, "failed to parse configuration %s=%q to %T", key, value, defaultValue)
	}
	return parsed.(T), nil
}

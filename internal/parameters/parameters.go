// Package parameters handles learner configuration strings of the form
// "name:key1=value1,key2,key3=value3", as used on the command line and in the YAML
// configuration to describe the ensemble members.
package parameters

import (
	"github.com/pkg/errors"
	"slices"
	"strconv"
	"strings"
)

// Params represent generic configuration parameters.
type Params map[string]string

// Split a configuration string into the module name (before the first ":") and its
// parameters. A configuration without ":" is only a name, e.g. "rf".
func Split(config string) (name string, params Params) {
	config = strings.TrimSpace(config)
	name = config
	rest := ""
	if idx := strings.Index(config, ":"); idx != -1 {
		name = config[:idx]
		rest = config[idx+1:]
	}
	return strings.TrimSpace(name), NewFromConfigString(rest)
}

// NewFromConfigString create params from a comma-separated list of "key=value" pairs.
// Keys without values are stored with an empty value, which GetParamOr interprets as
// true for booleans.
func NewFromConfigString(config string) Params {
	params := make(Params)
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		params[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return params
}

// String returns the params back in configuration string format, with sorted keys.
func (p Params) String() string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		if p[key] == "" {
			parts = append(parts, key)
		} else {
			parts = append(parts, key+"="+p[key])
		}
	}
	return strings.Join(parts, ",")
}

// CheckConsumed returns an error listing any keys left in params. Makers call it after
// popping every parameter they know, so typos are reported instead of ignored.
func CheckConsumed(name string, params Params) error {
	if len(params) == 0 {
		return nil
	}
	unknown := make([]string, 0, len(params))
	for key := range params {
		unknown = append(unknown, key)
	}
	slices.Sort(unknown)
	return errors.Errorf("unknown parameters for %q: %s", name, strings.Join(unknown, ", "))
}

// PopParamOr is like GetParamOr, but it also deletes from the params map the retrieved parameter.
func PopParamOr[T interface {
	bool | int | uint64 | float32 | float64 | string
}](params Params, key string, defaultValue T) (T, error) {
	value, err := GetParamOr(params, key, defaultValue)
	if err != nil {
		return value, err
	}
	delete(params, key)
	return value, nil
}

// GetParamOr attempts to parse a parameter to the given type if the key is present, or returns the defaultValue
// if not.
//
// For bool types, a key without a value is interpreted as true.
func GetParamOr[T interface {
	bool | int | uint64 | float32 | float64 | string
}](params Params, key string, defaultValue T) (T, error) {
	vAny := (any)(defaultValue)
	var t T
	toT := func(v any) T { return v.(T) }
	value, exists := params[key]
	if !exists {
		return defaultValue, nil
	}
	switch vAny.(type) {
	case string:
		return toT(value), nil
	case int:
		if value == "" {
			break
		}
		parsedValue, err := strconv.Atoi(value)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to int", key, value)
		}
		return toT(parsedValue), nil
	case uint64:
		if value == "" {
			break
		}
		parsedValue, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to uint64", key, value)
		}
		return toT(parsedValue), nil
	case float32:
		if value == "" {
			break
		}
		parsedValue, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to float", key, value)
		}
		return toT(float32(parsedValue)), nil
	case float64:
		if value == "" {
			break
		}
		parsedValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return t, errors.Wrapf(err, "failed to parse configuration %s=%q to float", key, value)
		}
		return toT(parsedValue), nil
	case bool:
		lower := strings.ToLower(value)
		if value == "" || lower == "true" || value == "1" { // Empty value is considered "true"
			return toT(true), nil
		}
		if lower == "false" || value == "0" {
			return toT(false), nil
		}
		return defaultValue, errors.Errorf("failed to parse configuration %s=%q to bool", key, value)
	}
	return defaultValue, nil
}

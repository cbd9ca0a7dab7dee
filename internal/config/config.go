package config

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/caarlos0/env/v11"
)

// validatable is implemented by config sections with cross-field rules.
type validatable interface {
	Validate() error
}

// New parses environment variables into T, then runs Validate on T and on
// every field of T that has one.
func New[T any]() (T, error) {
	var cfg T
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if err := validate(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func validate(cfg any) error {
	var errs []error

	if v, ok := cfg.(validatable); ok {
		errs = append(errs, v.Validate())
	}

	rv := reflect.ValueOf(cfg)
	if rv.Kind() == reflect.Struct {
		for i := range rv.NumField() {
			if !rv.Type().Field(i).IsExported() {
				continue
			}
			if v, ok := rv.Field(i).Interface().(validatable); ok {
				errs = append(errs, v.Validate())
			}
		}
	}

	return errors.Join(errs...)
}

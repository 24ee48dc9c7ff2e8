package config

import "github.com/cockroachdb/errors"

var (
	ErrConfigFileNotFound  = errors.New("config: file not found")
	ErrInvalidConfigFormat = errors.New("config: invalid format")
	ErrValidationFailed    = errors.New("config: validation failed")
	ErrNilConfig           = errors.New("config: nil config")
)

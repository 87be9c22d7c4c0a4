package config

import "errors"

var (
	ErrConfigFileNotFound  = errors.New("config: file not found")
	ErrInvalidConfigFormat = errors.New("config: invalid format")
	ErrKeyNotFound         = errors.New("config: key not found")
	ErrValidationFailed    = errors.New("config: validation failed")
	ErrNilConfig           = errors.New("config: nil config")
	ErrMergeFailed         = errors.New("config: merge failed")
)

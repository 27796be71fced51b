package config

import "errors"

var (
	ErrNilConfig = errors.New("config: nil target")
	ErrParsing   = errors.New("config: failed to parse environment")
)

package channel

import "errors"

// Pattern parsing errors. Every Compile error also matches ErrInvalidPattern.
var (
	ErrInvalidPattern   = errors.New("invalid channel pattern")
	ErrEmptyPattern     = errors.New("channel pattern must not be empty")
	ErrEmptySegment     = errors.New("channel pattern contains an empty segment")
	ErrEmptyParamName   = errors.New("channel pattern param name is missing after ':'")
	ErrDuplicateParam   = errors.New("channel pattern contains duplicate param key")
	ErrPatternNotSecure = errors.New("channel pattern is not registered")
)

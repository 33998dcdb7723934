package log

import "go.uber.org/zap"

// Field is zap.Field, re-exported so callers need not import zap.
type Field = zap.Field

// Field constructors used across the module.
var (
	Any      = zap.Any
	Bool     = zap.Bool
	Duration = zap.Duration
	Error    = zap.Error
	Int      = zap.Int
	Int64    = zap.Int64
	String   = zap.String
)

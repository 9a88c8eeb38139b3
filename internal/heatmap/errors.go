package heatmap

import "errors"

// Configuration errors are fatal to a render call. Callers match them with
// errors.Is; messages carry a "heatmap:" prefix.
var (
	// ErrInvalidConfig is the parent of every configuration rejection.
	ErrInvalidConfig = errors.New("heatmap: invalid configuration")

	ErrEmptyPalette      = newConfigError("empty palette")
	ErrPaletteSize       = newConfigError("palette size out of range")
	ErrElementSize       = newConfigError("element width and height must be positive")
	ErrResponseMode      = newConfigError("unknown color response")
	ErrScaleMode         = newConfigError("unknown scale mode")
	ErrDisplayOrder      = newConfigError("display order does not match matrix shape")
	ErrColorListMismatch = newConfigError("feature lists and colors differ in length")
	ErrShape             = newConfigError("matrix shape does not match its labels or values")

	// ErrImageTooLarge is returned before allocating an output buffer that
	// would exceed the configured pixel budget.
	ErrImageTooLarge = errors.New("heatmap: image exceeds pixel budget")
)

type configError struct{ msg string }

func (e *configError) Error() string { return "heatmap: " + e.msg }

func (e *configError) Unwrap() error { return ErrInvalidConfig }

func newConfigError(msg string) error { return &configError{msg: msg} }

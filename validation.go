package swrouter

import "errors"

// Validator accumulates codec validation errors so a single pass over a
// frame's fields can report every problem found, or just the first one for
// callers that only care whether the frame is usable at all.
type Validator struct {
	allowMultiErrs bool
	accum          []error
}

// AllowMultiErrs configures whether subsequent AddError calls accumulate
// every error (true) or keep only the first (false, the default).
func (v *Validator) AllowMultiErrs(allow bool) { v.allowMultiErrs = allow }

// HasError reports whether any error has been recorded.
func (v *Validator) HasError() bool { return len(v.accum) != 0 }

// AddError records a validation failure. Panics if err is nil.
func (v *Validator) AddError(err error) {
	if err == nil {
		panic("swrouter: AddError called with nil error")
	}
	if len(v.accum) != 0 && !v.allowMultiErrs {
		return
	}
	v.accum = append(v.accum, err)
}

// Err returns the accumulated error, joining multiple with errors.Join.
// Returns nil if no error was recorded.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	default:
		return errors.Join(v.accum...)
	}
}

// ErrPop returns the accumulated error and resets the validator for reuse.
func (v *Validator) ErrPop() error {
	err := v.Err()
	v.accum = v.accum[:0]
	return err
}

// Reset clears all accumulated errors without returning them.
func (v *Validator) Reset() { v.accum = v.accum[:0] }

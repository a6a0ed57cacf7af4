package etharp

import "errors"

// Validator accumulates errors found while checking the fields of a frame
// against its backing buffer. The zero value is ready for use. A single
// Validator may be reused across frames by calling [Validator.ResetErr]
// between uses.
type Validator struct {
	accum []error
}

// ResetErr discards accumulated errors, readying the Validator for reuse.
func (v *Validator) ResetErr() {
	v.accum = v.accum[:0]
}

// HasError returns true if at least one error was accumulated.
func (v *Validator) HasError() bool { return len(v.accum) != 0 }

// Err returns the accumulated error(s), or nil if validation passed.
func (v *Validator) Err() error {
	switch len(v.accum) {
	case 0:
		return nil
	case 1:
		return v.accum[0]
	}
	return errors.Join(v.accum...)
}

// AddError adds a validation error. Panics if err is nil.
func (v *Validator) AddError(err error) {
	if err == nil {
		panic("error argument to AddError cannot be nil")
	}
	v.accum = append(v.accum, err)
}

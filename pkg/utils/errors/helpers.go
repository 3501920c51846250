package errors

// FromError resolves any error to an Errno. An Errno passes through
// unchanged; anything else becomes ErrInternal with the original kept
// as cause, so pipeline failures still map to a stable API code.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Errno); ok {
		return e
	}
	return ErrInternal.WithCause(err)
}

// IsCode reports whether err is an Errno carrying the given code.
func IsCode(err error, code int) bool {
	e, ok := err.(*Errno)
	return ok && e.Code == code
}

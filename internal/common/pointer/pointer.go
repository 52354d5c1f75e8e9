package pointer

// Pointer returns a pointer to a copy of v, for optional configuration values that may legitimately be zero.
func Pointer[T any](v T) *T {
	return &v
}

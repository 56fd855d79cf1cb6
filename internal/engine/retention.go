package engine

// DefaultRetention is the log length used when no positive retention is configured.
const DefaultRetention = 300

// Retention is the stored retention register. Zero means "use the default",
// never "unbounded".
type Retention uint32

// Effective returns the maximum log length this register allows.
func (r Retention) Effective() int {
	if r == 0 {
		return DefaultRetention
	}
	return int(r)
}

// ResolveRetention turns an optional initialization override into the value
// stored in the register: positive overrides win, anything else is the default.
func ResolveRetention(override int) uint32 {
	if override > 0 {
		return uint32(override)
	}
	return DefaultRetention
}

package cmm

// UnsupportedColorSpaceError marks a colour left untouched because its
// space is not a device space (patterns, Indexed, Separation, DeviceN,
// ICC-based and other named resources).
type UnsupportedColorSpaceError struct {
	Name string
}

func (e *UnsupportedColorSpaceError) Error() string {
	return "unsupported color space /" + e.Name
}

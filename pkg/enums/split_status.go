package enums

// SplitStatus is the terminal outcome of one disbursement attempt.
type SplitStatus string

const (
	SplitStatusSuccess SplitStatus = "success"
	SplitStatusFailed  SplitStatus = "failed"
)

// String implements fmt.Stringer.
func (s SplitStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SplitStatus.
func (s SplitStatus) IsValid() bool {
	return s == SplitStatusSuccess || s == SplitStatusFailed
}

package enums

import "fmt"

// ChargeStatus mirrors the gateway-side lifecycle of a PIX charge.
type ChargeStatus string

const (
	ChargeStatusActive    ChargeStatus = "ACTIVE"
	ChargeStatusCompleted ChargeStatus = "COMPLETED"
	ChargeStatusExpired   ChargeStatus = "EXPIRED"
)

var validChargeStatuses = []ChargeStatus{
	ChargeStatusActive,
	ChargeStatusCompleted,
	ChargeStatusExpired,
}

// String implements fmt.Stringer.
func (c ChargeStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ChargeStatus.
func (c ChargeStatus) IsValid() bool {
	for _, candidate := range validChargeStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (c ChargeStatus) IsTerminal() bool {
	return c == ChargeStatusCompleted || c == ChargeStatusExpired
}

// ParseChargeStatus converts raw input into a ChargeStatus.
func ParseChargeStatus(value string) (ChargeStatus, error) {
	for _, candidate := range validChargeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid charge status %q", value)
}

package enums

import "fmt"

// PayoutStatus tracks whether settled funds have been paid out to the seller.
type PayoutStatus string

const (
	PayoutStatusAvailable  PayoutStatus = "available"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusWithdrawn  PayoutStatus = "withdrawn"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusAvailable,
	PayoutStatusProcessing,
	PayoutStatusWithdrawn,
}

// String implements fmt.Stringer.
func (p PayoutStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}

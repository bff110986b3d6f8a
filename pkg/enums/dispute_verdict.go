package enums

import "fmt"

// DisputeVerdict is the admin decision that closes a dispute.
type DisputeVerdict string

const (
	DisputeVerdictRefundBuyer     DisputeVerdict = "refund_buyer"
	DisputeVerdictReleaseToSeller DisputeVerdict = "release_to_seller"
)

var validDisputeVerdicts = []DisputeVerdict{
	DisputeVerdictRefundBuyer,
	DisputeVerdictReleaseToSeller,
}

// String implements fmt.Stringer.
func (v DisputeVerdict) String() string {
	return string(v)
}

// IsValid reports whether the value is a known DisputeVerdict.
func (v DisputeVerdict) IsValid() bool {
	for _, candidate := range validDisputeVerdicts {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseDisputeVerdict converts raw input into a DisputeVerdict.
func ParseDisputeVerdict(value string) (DisputeVerdict, error) {
	for _, candidate := range validDisputeVerdicts {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute verdict %q", value)
}

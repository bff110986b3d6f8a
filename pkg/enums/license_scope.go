package enums

import "fmt"

// LicenseScope describes the usage rights granted after settlement.
type LicenseScope string

const (
	LicenseScopeStandard  LicenseScope = "standard"
	LicenseScopeExclusive LicenseScope = "exclusive"
)

var validLicenseScopes = []LicenseScope{
	LicenseScopeStandard,
	LicenseScopeExclusive,
}

// String implements fmt.Stringer.
func (s LicenseScope) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LicenseScope.
func (s LicenseScope) IsValid() bool {
	for _, candidate := range validLicenseScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLicenseScope converts raw input into a LicenseScope.
func ParseLicenseScope(value string) (LicenseScope, error) {
	for _, candidate := range validLicenseScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid license scope %q", value)
}

package sms

// Delivery status codes per 3GPP TS 23.040 §9.2.3.15. Only the ranges
// matter here, not every individual value.
const (
	// 0x00-0x1F: successful delivery family (final).
	successRangeEnd = 0x1F

	// 0x20-0x3F: temporary error, SC still trying (not final).
	temporaryRangeStart = 0x20
	temporaryRangeEnd   = 0x3F

	// 0x40-0x7F: permanent error (final).
	permanentErrorRangeStart = 0x40
)

// IsFinalStatus reports whether a delivery-report status code
// represents a terminal outcome (success or permanent failure) rather
// than a temporary, still-retrying state. This replaces the
// hardcoded-always-final behavior with a real classification of the
// numeric status.
func IsFinalStatus(status uint8) bool {
	switch {
	case status <= successRangeEnd:
		return true
	case status >= temporaryRangeStart && status <= temporaryRangeEnd:
		return false
	case status >= permanentErrorRangeStart:
		return true
	default:
		return true
	}
}

// asdaMobileSenderQuirk is the literal alphabetic sender address one
// carrier occasionally sends instead of a numeric originating address.
const asdaMobileSenderQuirk = "ASDAmobile"

// asdaMobileSenderReplacement is the numeric address substituted for
// the quirk above.
const asdaMobileSenderReplacement = "2732"

// NormalizeSenderAddress applies the known carrier quirk substitution:
// a sender address that decodes to the literal string "ASDAmobile" is
// replaced with "2732" before any downstream use.
func NormalizeSenderAddress(address string) string {
	if address == asdaMobileSenderQuirk {
		return asdaMobileSenderReplacement
	}
	return address
}

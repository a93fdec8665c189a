package privacy

import "regexp"

// Kind identifies the category of a detected PII entity.
type Kind string

// Supported PII kinds.
const (
	KindEmail      Kind = "email"
	KindPhoneAT    Kind = "phone_at"
	KindPhoneDE    Kind = "phone_de"
	KindIBAN       Kind = "iban"
	KindIPAddress  Kind = "ip_address"
	KindCreditCard Kind = "credit_card"
	KindNationalID Kind = "national_id"
	KindPostalCode Kind = "postal_code"
	KindFirstName  Kind = "first_name"
	KindFullName   Kind = "full_name"
)

// AllKinds lists every kind the detector can emit, structural kinds first.
func AllKinds() []Kind {
	return []Kind{
		KindEmail, KindPhoneAT, KindPhoneDE, KindIBAN, KindIPAddress,
		KindCreditCard, KindNationalID, KindPostalCode,
		KindFirstName, KindFullName,
	}
}

// Rule is a single pattern in the library. Group selects the capture group
// the detection span is anchored to; 0 anchors to the whole match.
type Rule struct {
	Kind    Kind
	Pattern *regexp.Regexp
	Group   int
}

// Detection is one detected PII span. Offsets are byte offsets into the
// scanned text, End exclusive. Value is never serialized.
type Detection struct {
	Kind       Kind    `json:"kind"`
	Value      string  `json:"-"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

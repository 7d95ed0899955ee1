package enums

import "fmt"

// IntentKind classifies what a charge pays for.
type IntentKind string

const (
	IntentKindRegistrationJudge       IntentKind = "registration-judge"
	IntentKindRegistrationStaff       IntentKind = "registration-staff"
	IntentKindRegistrationAudiovisual IntentKind = "registration-audiovisual"
	IntentKindProductPurchase         IntentKind = "product-purchase"
)

var validIntentKinds = []IntentKind{
	IntentKindRegistrationJudge,
	IntentKindRegistrationStaff,
	IntentKindRegistrationAudiovisual,
	IntentKindProductPurchase,
}

var intentKindSlugs = map[IntentKind]string{
	IntentKindRegistrationJudge:       "judge",
	IntentKindRegistrationStaff:       "staff",
	IntentKindRegistrationAudiovisual: "audiovisual",
	IntentKindProductPurchase:         "produto",
}

// String implements fmt.Stringer.
func (k IntentKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known IntentKind.
func (k IntentKind) IsValid() bool {
	for _, candidate := range validIntentKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Slug returns the short form used inside correlation ids.
func (k IntentKind) Slug() string {
	if slug, ok := intentKindSlugs[k]; ok {
		return slug
	}
	return "intent"
}

// Category maps the kind to a split-table category.
func (k IntentKind) Category() string {
	if k == IntentKindProductPurchase {
		return "produto"
	}
	return "inscricao"
}

// ParseIntentKind converts raw input into an IntentKind.
func ParseIntentKind(value string) (IntentKind, error) {
	for _, candidate := range validIntentKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid intent kind %q", value)
}

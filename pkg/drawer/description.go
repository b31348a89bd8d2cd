package drawer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

const maxDescriptionLength = 255

// MovementDetails are the free-text fields a cashier supplies with a cash movement.
type MovementDetails struct {
	Reason    string
	Reference string
	Notes     string
}

// NormalizeDescription canonicalizes free text so equal notes collapse to one suggestion.
func NormalizeDescription(raw string) string {
	collapsed := strings.Join(strings.Fields(norm.NFC.String(raw)), " ")
	return cases.Upper(language.Und).String(collapsed)
}

func composeDescription(category Category, details MovementDetails) (string, error) {
	parts := make([]string, 0, 3)
	for _, field := range []string{details.Reason, details.Reference, details.Notes} {
		if normalized := NormalizeDescription(field); normalized != "" {
			parts = append(parts, normalized)
		}
	}
	description := strings.Join(parts, descriptionSeparator)
	if category == CategorySafeDrop {
		remainder := strings.TrimSpace(strings.TrimPrefix(description, safeDropMarker))
		remainder = strings.TrimSpace(strings.TrimPrefix(remainder, strings.TrimSpace(descriptionSeparator)))
		description = safeDropMarker
		if remainder != "" {
			description += descriptionSeparator + remainder
		}
	}
	if description == "" {
		description = NormalizeDescription(strings.ReplaceAll(string(category), "_", " "))
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidDescription, maxDescriptionLength)
	}
	return description, nil
}

func shiftCountDescription(counted decimal.Decimal, expected decimal.Decimal, variance decimal.Decimal) string {
	return fmt.Sprintf("%s%sCounted: %s, Expected: %s, Variance: %s",
		shiftCountMarker,
		descriptionSeparator,
		counted.StringFixed(amountScale),
		expected.StringFixed(amountScale),
		variance.StringFixed(amountScale),
	)
}

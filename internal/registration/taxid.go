package registration

import "strings"

// TaxIDLength is the number of digits of a tax identifier including the check digit.
const TaxIDLength = 10

var taxIDWeights = [TaxIDLength - 1]int{41, 37, 29, 23, 19, 17, 13, 7, 3}

// DigitsOnly strips every non-digit character.
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TaxIDCheckDigit computes the Modulus-11 check digit for the first nine digits
// of a tax identifier. The input must contain exactly nine ASCII digits.
func TaxIDCheckDigit(base string) (int, error) {
	if len(base) != TaxIDLength-1 {
		return 0, ErrTaxIDLength
	}
	sum := 0
	for i := 0; i < len(base); i++ {
		c := base[i]
		if c < '0' || c > '9' {
			return 0, ErrTaxIDLength
		}
		sum += int(c-'0') * taxIDWeights[i]
	}
	remainder := sum % 11
	if remainder > 1 {
		return 11 - remainder, nil
	}
	return remainder, nil
}

// CheckTaxID validates a tax identifier. Non-digit characters are ignored.
// It returns ErrTaxIDLength when the digits do not number exactly ten and
// ErrInvalidCheckDigit when the last digit does not match.
func CheckTaxID(raw string) error {
	digits := DigitsOnly(raw)
	if len(digits) != TaxIDLength {
		return ErrTaxIDLength
	}
	expected, err := TaxIDCheckDigit(digits[:TaxIDLength-1])
	if err != nil {
		return err
	}
	if int(digits[TaxIDLength-1]-'0') != expected {
		return ErrInvalidCheckDigit
	}
	return nil
}

// ValidTaxID reports whether raw is a well-formed tax identifier.
func ValidTaxID(raw string) bool {
	return CheckTaxID(raw) == nil
}

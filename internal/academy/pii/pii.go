// Package pii normalizes and hashes personal fields before they leave the
// process. The normalization matches what the browser pixel does, so a hash
// computed here equals the one computed client side for the same input.
package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/BrandonDHaskell/summer-academy/internal/academy/types"
)

// DefaultCountryCode is prefixed to phone numbers that lack one.
const DefaultCountryCode = "234"

// Hash returns the hex SHA-256 of the lowercased, trimmed value. Empty input
// yields an empty string so absent fields stay absent.
func Hash(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// NormalizePhone keeps only digits, drops a "00" international prefix,
// replaces a single leading trunk zero with the country code and prefixes the
// code when it is missing.
func NormalizePhone(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "00"):
		// international dialing prefix; the number already carries its code
		return digits[2:]
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	}
	return countryCode + digits
}

// HashPhone normalizes then hashes a phone number.
func HashPhone(raw, countryCode string) string {
	return Hash(NormalizePhone(raw, countryCode))
}

// SplitName splits a full name into first name and the remainder.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// Contact is the raw personal data a form submits.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// Hasher applies a fixed country code.
type Hasher struct {
	CountryCode string
}

// UserData returns the hashed user block for c. Browser ids and network
// fields are left for the caller to fill.
func (h Hasher) UserData(c Contact) types.UserData {
	first, last := SplitName(c.Name)
	return types.UserData{
		Email:     Hash(c.Email),
		Phone:     HashPhone(c.Phone, h.CountryCode),
		FirstName: Hash(first),
		LastName:  Hash(last),
	}
}

// Package address classifies user supplied account identifiers.
package address

import (
	"errors"
	"strings"
)

const (
	// NameSuffix marks a human readable name that needs resolution.
	NameSuffix = ".eth"
	hexPrefix  = "0x"
	hexLength  = 42
)

// ErrInvalid is returned for anything that is neither a name nor a hex address.
var ErrInvalid = errors.New("Invalid address")

// IsName reports whether s is a resolvable name.
func IsName(s string) bool {
	return strings.HasSuffix(s, NameSuffix)
}

// Validate accepts names ending in .eth and 42 character strings starting with 0x.
func Validate(s string) error {
	if IsName(s) {
		return nil
	}
	if len(s) != hexLength || !strings.HasPrefix(s, hexPrefix) {
		return ErrInvalid
	}
	return nil
}

// IsValid is the boolean form of Validate.
func IsValid(s string) bool {
	return Validate(s) == nil
}

// Package ident generates correlation ids.
package ident

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// New returns a random UUID. If the system randomness source fails it falls
// back to a pseudo-random string of the same shape; it never panics.
func New() string {
	id, err := uuid.NewRandom()
	if err == nil {
		return id.String()
	}
	return fallback()
}

func fallback() string {
	hi, lo := rand.Uint64(), rand.Uint64()
	// version 4, RFC 4122 variant
	hi = (hi &^ (0xf << 12)) | (0x4 << 12)
	lo = (lo &^ (0x3 << 62)) | (0x2 << 62)
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		hi>>32, (hi>>16)&0xffff, hi&0xffff, lo>>48, lo&0xffffffffffff)
}

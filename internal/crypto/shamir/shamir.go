// Package shamir implements Shamir's Secret Sharing over GF(256).
//
// A secret is split into N shares of which any M reconstruct it exactly;
// any M-1 shares are information-theoretically independent of the secret.
package shamir

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/yungbote/tessera-backend/internal/crypto/gf256"
)

const (
	// MinThreshold is the smallest allowed reconstruction threshold.
	MinThreshold = 2
	// MaxShares caps the share count; index 0 is reserved for the secret
	// itself and index 255 is kept out of range.
	MaxShares = 254
)

var (
	ErrEmptySecret             = errors.New("shamir: secret is empty")
	ErrInvalidThreshold        = errors.New("shamir: invalid threshold/share count")
	ErrRandomSource            = errors.New("shamir: random source failure")
	ErrInsufficientShares      = errors.New("shamir: insufficient shares")
	ErrDuplicateShareIndex     = errors.New("shamir: duplicate share index")
	ErrInconsistentShareLength = errors.New("shamir: shares have differing lengths")
	ErrReservedShareIndex      = errors.New("shamir: share index 0 is reserved")
)

// Share is one point of the split polynomial set. Index runs 1..N.
type Share struct {
	Index byte
	Value []byte
}

// Split divides secret into total shares with the given reconstruction
// threshold. Every byte position gets an independent random polynomial
// whose constant term is the secret byte; share k holds the evaluations
// at x = k. A single failed random read fails the whole split.
func Split(secret []byte, threshold, total int) ([]Share, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if threshold < MinThreshold || threshold > total || total > MaxShares {
		return nil, fmt.Errorf("%w: threshold=%d total=%d", ErrInvalidThreshold, threshold, total)
	}

	shares := make([]Share, total)
	for i := range shares {
		shares[i].Index = byte(i + 1)
		shares[i].Value = make([]byte, len(secret))
	}

	coeffs := make([]byte, threshold)
	for byteIdx := range secret {
		coeffs[0] = secret[byteIdx]
		if threshold > 1 {
			if _, err := rand.Read(coeffs[1:]); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
			}
		}
		for i := range shares {
			shares[i].Value[byteIdx] = gf256.Eval(coeffs, shares[i].Index)
		}
	}
	wipe(coeffs)

	return shares, nil
}

// Combine reconstructs the secret from at least threshold shares via
// Lagrange interpolation at x = 0. Only the first threshold shares are
// used after validation.
func Combine(shares []Share, threshold int) ([]byte, error) {
	if threshold < MinThreshold {
		return nil, fmt.Errorf("%w: threshold=%d", ErrInvalidThreshold, threshold)
	}
	if len(shares) < threshold {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrInsufficientShares, threshold, len(shares))
	}

	seen := make(map[byte]bool, len(shares))
	length := -1
	for _, s := range shares {
		if s.Index == 0 {
			return nil, ErrReservedShareIndex
		}
		if seen[s.Index] {
			return nil, fmt.Errorf("%w: index %d", ErrDuplicateShareIndex, s.Index)
		}
		seen[s.Index] = true
		if length == -1 {
			length = len(s.Value)
		} else if len(s.Value) != length {
			return nil, ErrInconsistentShareLength
		}
	}
	if length == 0 {
		return nil, ErrEmptySecret
	}

	subset := shares[:threshold]
	secret := make([]byte, length)
	for byteIdx := 0; byteIdx < length; byteIdx++ {
		secret[byteIdx] = interpolateAtZero(subset, byteIdx)
	}
	return secret, nil
}

// interpolateAtZero evaluates the unique degree threshold-1 polynomial
// through the share points at x = 0 for one byte position.
func interpolateAtZero(shares []Share, byteIdx int) byte {
	var result byte
	for i := range shares {
		xi := shares[i].Index
		yi := shares[i].Value[byteIdx]

		var num byte = 1
		var den byte = 1
		for j := range shares {
			if i == j {
				continue
			}
			xj := shares[j].Index
			// (0 - xj) is xj in GF(256).
			num = gf256.Mul(num, xj)
			den = gf256.Mul(den, gf256.Add(xi, xj))
		}
		result = gf256.Add(result, gf256.Mul(yi, gf256.Div(num, den)))
	}
	return result
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

package analysis

import (
	"crypto/md5" //nolint:gosec // the provider keys tracks by MD5
	"encoding/hex"

	"github.com/tphakala/go-remix/internal/errors"
)

// Digest is the MD5 of the raw input bytes, used as the cache key and the
// provider lookup key.
type Digest [md5.Size]byte

// Sum returns the digest of data.
func Sum(data []byte) Digest {
	return md5.Sum(data) //nolint:gosec // content addressing, not security
}

// String returns the lower-case hex form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest parses a 32 character hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != 2*md5.Size {
		return d, errors.Newf("digest must be %d hex characters, got %d", 2*md5.Size, len(s)).
			Component(componentAnalysis).
			Category(errors.CategoryValidation).
			Build()
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, errors.New(err).
			Component(componentAnalysis).
			Category(errors.CategoryValidation).
			Context("operation", "parse_digest").
			Build()
	}
	return d, nil
}

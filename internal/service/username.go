package service

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	usernameFallbackBase = "user"
	usernameSuffixLen    = 6
	usernameSuffixChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// SuffixSource draws a random suffix of n characters. It is injectable so
// tests can assert the generated format deterministically.
type SuffixSource func(n int) string

func cryptoSuffixSource(n int) string {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(usernameSuffixChars)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// a fixed character keeps the generator total.
			b.WriteByte(usernameSuffixChars[0])
			continue
		}
		b.WriteByte(usernameSuffixChars[idx.Int64()])
	}
	return b.String()
}

// UsernameGenerator produces collision-free human-readable usernames of the
// form base_xxxxxx, where base derives from a name hint.
type UsernameGenerator struct {
	suffix SuffixSource
}

func NewUsernameGenerator() *UsernameGenerator {
	return &UsernameGenerator{suffix: cryptoSuffixSource}
}

// NewUsernameGeneratorWithSource injects a deterministic suffix source
func NewUsernameGeneratorWithSource(source SuffixSource) *UsernameGenerator {
	return &UsernameGenerator{suffix: source}
}

// Generate returns base + "_" + 6 random lowercase-alphanumeric characters.
// The base is the lowercase-folded hint, or "user" when no hint is given.
func (g *UsernameGenerator) Generate(hint string) string {
	base := strings.ToLower(strings.TrimSpace(hint))
	if base == "" {
		base = usernameFallbackBase
	}
	return base + "_" + g.suffix(usernameSuffixLen)
}

// GenerateUnique retries with fresh suffixes until the existence predicate
// reports the candidate free. A store error aborts immediately instead of
// retrying, so the loop cannot spin on a broken store.
func (g *UsernameGenerator) GenerateUnique(ctx context.Context, hint string, exists func(ctx context.Context, username string) (bool, error)) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate := g.Generate(hint)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

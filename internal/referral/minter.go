// Package referral mints the one-time activation codes that bind a roster
// record to a messaging identity.
//
// Codes are derived from the person's own data hashed with a fresh random
// salt, so they are unguessable, and every candidate is verified against the
// live store before being handed out.
package referral

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultLength is the code length used when none is configured.
const DefaultLength = 11

// maxAttempts bounds the hash-and-check loop before falling back to the
// timestamp-suffixed code.
const maxAttempts = 100

// ErrCodeSpaceExhausted is returned when every fallback candidate also
// collided. With a 58-character alphabet this is unreachable in practice;
// failing closed here is a documented residual risk, not a retry target.
var ErrCodeSpaceExhausted = errors.New("referral: could not mint a unique code")

// alphabet excludes the visually ambiguous characters 0, O, o, 1, I and l.
var alphabet = buildAlphabet()

func buildAlphabet() string {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const digits = "0123456789"
	var b strings.Builder
	for _, r := range letters + digits + "-_" {
		switch r {
		case '0', 'O', 'o', '1', 'I', 'l':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CodeStore is the uniqueness oracle the minter consults. It is satisfied by
// the postgres roster repository.
type CodeStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// Seed carries the personal fields mixed into the hash. More entropy in the
// seed means less dependence on the salt, but the salt alone already makes
// candidates unpredictable.
type Seed struct {
	ID        int64
	Name      string
	BirthDate string
	StartDate string
}

// Minter issues unique activation codes against a backing store.
type Minter struct {
	store  CodeStore
	length int
	now    func() time.Time
}

// New creates a Minter producing codes of the given length; length <= 0
// selects DefaultLength.
func New(store CodeStore, length int) *Minter {
	if length <= 0 {
		length = DefaultLength
	}
	return &Minter{store: store, length: length, now: time.Now}
}

// Mint returns a fresh code that did not exist in the store at check time.
// It never returns a code without at least one uniqueness check.
func (m *Minter) Mint(ctx context.Context, seed Seed) (string, error) {
	personal := fmt.Sprintf("%d:%s:%s:%s", seed.ID, seed.Name, seed.BirthDate, seed.StartDate)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		salt, err := randomHex(16)
		if err != nil {
			return "", fmt.Errorf("referral: salt: %w", err)
		}
		code := m.codeFromHash(personal + ":" + salt + ":" + strconv.Itoa(attempt))

		exists, err := m.store.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("referral: uniqueness check: %w", err)
		}
		if !exists {
			return code, nil
		}
	}

	// Hash space kept colliding: switch to a timestamp suffix plus residual
	// random characters. The microsecond tail may contain digits outside the
	// restricted alphabet; that matches the accepted behavior of the primary
	// data set and only ever happens on this path. Short configured lengths
	// trim the tail so the code never exceeds the nominal length.
	ts := microTail(m.now(), 6)
	if len(ts) >= m.length {
		ts = ts[len(ts)-m.length+1:]
	}
	prefix, err := randomChars(m.length - len(ts))
	if err != nil {
		return "", fmt.Errorf("referral: fallback: %w", err)
	}
	code := prefix + ts
	exists, err := m.store.CodeExists(ctx, code)
	if err != nil {
		return "", fmt.Errorf("referral: uniqueness check: %w", err)
	}
	if !exists {
		return code, nil
	}

	// Last resort: trade prefix characters for extra hex entropy.
	prefix, err = randomChars(m.length - len(ts) - 2)
	if err != nil {
		return "", fmt.Errorf("referral: fallback: %w", err)
	}
	extra, err := randomHex(1)
	if err != nil {
		return "", fmt.Errorf("referral: fallback: %w", err)
	}
	code = prefix + ts + extra
	if len(code) > m.length {
		code = code[len(code)-m.length:]
	}
	exists, err = m.store.CodeExists(ctx, code)
	if err != nil {
		return "", fmt.Errorf("referral: uniqueness check: %w", err)
	}
	if !exists {
		return code, nil
	}
	return "", ErrCodeSpaceExhausted
}

// codeFromHash maps SHA-256 hex byte-pairs onto alphabet indices. When the
// digest runs out before the code is full it is re-salted and extended.
func (m *Minter) codeFromHash(combined string) string {
	sum := sha256.Sum256([]byte(combined))
	hexDigest := hex.EncodeToString(sum[:])

	var b strings.Builder
	b.Grow(m.length)
	hashIndex := 0
	for i := 0; i < m.length; i++ {
		if hashIndex >= len(hexDigest)-1 {
			hashIndex = 0
			salt, err := randomHex(8)
			if err != nil {
				salt = strconv.Itoa(i) // degraded but still deterministic-length
			}
			next := sha256.Sum256([]byte(combined + ":" + salt))
			hexDigest = hex.EncodeToString(next[:])
		}
		pair := hexDigest[hashIndex : hashIndex+2]
		v, _ := strconv.ParseUint(pair, 16, 16)
		b.WriteByte(alphabet[int(v)%len(alphabet)])
		hashIndex += 2
	}
	return b.String()
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func randomChars(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// microTail returns the last n digits of the microsecond unix timestamp.
func microTail(t time.Time, n int) string {
	s := strconv.FormatInt(t.UnixMicro(), 10)
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

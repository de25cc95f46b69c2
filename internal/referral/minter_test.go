package referral

import (
	"context"
	"strings"
	"testing"
)

// memStore is an in-memory CodeStore recording every minted code.
type memStore struct {
	codes  map[string]bool
	checks int
}

func newMemStore() *memStore { return &memStore{codes: map[string]bool{}} }

func (s *memStore) CodeExists(_ context.Context, code string) (bool, error) {
	s.checks++
	return s.codes[code], nil
}

func (s *memStore) add(code string) { s.codes[code] = true }

// alwaysTaken reports every candidate as already present.
type alwaysTaken struct{}

func (alwaysTaken) CodeExists(context.Context, string) (bool, error) { return true, nil }

func TestMint_DistinctRestrictedAlphabet(t *testing.T) {
	store := newMemStore()
	minter := New(store, 0)

	const n = 50
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		code, err := minter.Mint(context.Background(), Seed{
			ID:        int64(i),
			Name:      "Иван Петров",
			BirthDate: "1985-03-08",
			StartDate: "2020-01-15",
		})
		if err != nil {
			t.Fatalf("Mint() error: %v", err)
		}
		if len(code) != DefaultLength {
			t.Errorf("code %q length = %d, want %d", code, len(code), DefaultLength)
		}
		if seen[code] {
			t.Errorf("duplicate code %q", code)
		}
		for _, forbidden := range []string{"0", "O", "o", "1", "I", "l"} {
			if strings.Contains(code, forbidden) {
				t.Errorf("code %q contains ambiguous char %q", code, forbidden)
			}
		}
		seen[code] = true
		store.add(code)
	}
}

func TestMint_ChecksStoreBeforeReturning(t *testing.T) {
	store := newMemStore()
	minter := New(store, 8)

	if _, err := minter.Mint(context.Background(), Seed{ID: 7, Name: "x"}); err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if store.checks == 0 {
		t.Error("Mint() returned a code without consulting the store")
	}
}

func TestMint_CustomLength(t *testing.T) {
	minter := New(newMemStore(), 16)
	code, err := minter.Mint(context.Background(), Seed{ID: 1, Name: "a"})
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if len(code) != 16 {
		t.Errorf("code length = %d, want 16", len(code))
	}
}

func TestMint_SameSeedStillUnique(t *testing.T) {
	// The salt alone must separate two mints of an identical seed.
	store := newMemStore()
	minter := New(store, 0)
	seed := Seed{ID: 42, Name: "Анна Иванова", BirthDate: "1990-06-01", StartDate: "2021-09-01"}

	first, err := minter.Mint(context.Background(), seed)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	store.add(first)

	second, err := minter.Mint(context.Background(), seed)
	if err != nil {
		t.Fatalf("Mint() error: %v", err)
	}
	if first == second {
		t.Errorf("two mints of the same seed produced the same code %q", first)
	}
}

// takenUntil reports every candidate as taken for the first n checks.
type takenUntil struct{ n, checks int }

func (s *takenUntil) CodeExists(context.Context, string) (bool, error) {
	s.checks++
	return s.checks <= s.n, nil
}

func TestMint_FallbacksHonorConfiguredLength(t *testing.T) {
	// 100 collisions exhaust the hash attempts and land on the timestamp
	// fallback; 101 also exhaust that and land on the last resort. Neither
	// path may exceed a short configured length.
	for _, taken := range []int{100, 101} {
		minter := New(&takenUntil{n: taken}, 5)
		code, err := minter.Mint(context.Background(), Seed{ID: 1, Name: "x"})
		if err != nil {
			t.Fatalf("Mint() after %d collisions: %v", taken, err)
		}
		if len(code) != 5 {
			t.Errorf("fallback code %q after %d collisions: length = %d, want 5",
				code, taken, len(code))
		}
	}
}

func TestMint_FailsClosedWhenEverythingCollides(t *testing.T) {
	minter := New(alwaysTaken{}, 0)
	_, err := minter.Mint(context.Background(), Seed{ID: 1, Name: "x"})
	if err != ErrCodeSpaceExhausted {
		t.Errorf("Mint() error = %v, want ErrCodeSpaceExhausted", err)
	}
}

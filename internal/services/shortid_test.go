package services

import (
	"errors"
	"strings"
	"testing"
)

func TestRandomString(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := randomString(shortIDLength)
		if err != nil {
			t.Fatalf("randomString failed: %v", err)
		}
		if len(s) != shortIDLength {
			t.Fatalf("expected length %d, got %q", shortIDLength, s)
		}
		for _, r := range s {
			if !strings.ContainsRune(shortIDAlphabet, r) {
				t.Fatalf("character %q outside alphabet in %q", r, s)
			}
		}
		seen[s] = true
	}
	// 50 draws from a 62^8 space colliding would point at a broken generator.
	if len(seen) != 50 {
		t.Fatalf("expected 50 distinct draws, got %d", len(seen))
	}
}

func TestAllocateShortID(t *testing.T) {
	t.Run("returns first free candidate", func(t *testing.T) {
		calls := 0
		id, err := allocateShortID(func(string) (bool, error) {
			calls++
			return false, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(id) != shortIDLength {
			t.Fatalf("expected %d-char id, got %q", shortIDLength, id)
		}
		if calls != 1 {
			t.Fatalf("expected a single existence check, got %d", calls)
		}
	})

	t.Run("retries past collisions", func(t *testing.T) {
		calls := 0
		id, err := allocateShortID(func(string) (bool, error) {
			calls++
			return calls <= 3, nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id == "" {
			t.Fatal("expected an id after retries")
		}
		if calls != 4 {
			t.Fatalf("expected 4 attempts, got %d", calls)
		}
	})

	t.Run("reports exhaustion when every candidate is taken", func(t *testing.T) {
		calls := 0
		_, err := allocateShortID(func(string) (bool, error) {
			calls++
			return true, nil
		})
		if !errors.Is(err, ErrAllocationExhausted) {
			t.Fatalf("expected ErrAllocationExhausted, got %v", err)
		}
		if calls != shortIDMaxAttempts {
			t.Fatalf("expected %d attempts, got %d", shortIDMaxAttempts, calls)
		}
	})

	t.Run("propagates existence check failures", func(t *testing.T) {
		boom := errors.New("store down")
		_, err := allocateShortID(func(string) (bool, error) {
			return false, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected store error, got %v", err)
		}
	})
}

func TestGeneratePassword(t *testing.T) {
	password, err := generatePassword()
	if err != nil {
		t.Fatalf("generatePassword failed: %v", err)
	}
	if len(password) != generatedPasswordLength {
		t.Fatalf("expected %d-char password, got %q", generatedPasswordLength, password)
	}
}

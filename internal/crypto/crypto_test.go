package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func keyGen() *rapid.Generator[[]byte] {
	return rapid.SliceOfN(rapid.Byte(), KeySize, KeySize)
}

// TestCrypto_SealOpen_Roundtrip tests that opening sealed data with the same
// key and additional data returns the plaintext.
func TestCrypto_SealOpen_Roundtrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := keyGen().Draw(t, "key")
		plaintext := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "plaintext")
		aad := []byte(rapid.String().Draw(t, "aad"))

		sealed, err := Seal(key, plaintext, aad)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}
		if len(sealed) != NonceSize+len(plaintext)+tagSize {
			t.Fatalf("sealed length = %d, want %d", len(sealed), NonceSize+len(plaintext)+tagSize)
		}

		opened, err := Open(key, sealed, aad)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if !bytes.Equal(plaintext, opened) {
			t.Fatalf("roundtrip failed: got %x, want %x", opened, plaintext)
		}
	})
}

// TestCrypto_DeriveKey_Deterministic tests that DeriveKey is a pure function.
func TestCrypto_DeriveKey_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		master := rapid.SliceOfN(rapid.Byte(), 16, 64).Draw(t, "master")
		name := rapid.String().Draw(t, "name")
		version := rapid.IntRange(1, 1000).Draw(t, "version")

		k1 := DeriveKey(master, name, version)
		k2 := DeriveKey(master, name, version)
		if !bytes.Equal(k1, k2) {
			t.Fatalf("key derivation not deterministic: %x != %x", k1, k2)
		}
		if len(k1) != KeySize {
			t.Fatalf("derived key has wrong length: got %d, want %d", len(k1), KeySize)
		}
	})
}

// TestCrypto_DeriveKey_DomainSeparation tests that artifact names and versions
// both change the derived key.
func TestCrypto_DeriveKey_DomainSeparation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		master := keyGen().Draw(t, "master")
		name1 := rapid.StringMatching(`auth-state/[a-z0-9-]{1,20}\.json`).Draw(t, "name1")
		name2 := rapid.StringMatching(`auth-state/[a-z0-9-]{1,20}\.json`).Filter(func(s string) bool {
			return s != name1
		}).Draw(t, "name2")
		v1 := rapid.IntRange(1, 500).Draw(t, "v1")
		v2 := rapid.IntRange(501, 1000).Draw(t, "v2")

		if bytes.Equal(DeriveKey(master, name1, v1), DeriveKey(master, name2, v1)) {
			t.Fatalf("different names produced same key: %q, %q", name1, name2)
		}
		if bytes.Equal(DeriveKey(master, name1, v1), DeriveKey(master, name1, v2)) {
			t.Fatalf("different versions produced same key: v%d, v%d", v1, v2)
		}
	})
}

// TestCrypto_Seal_NonDeterministic tests that sealing twice uses fresh nonces.
func TestCrypto_Seal_NonDeterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := keyGen().Draw(t, "key")
		plaintext := rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(t, "plaintext")

		s1, err := Seal(key, plaintext, nil)
		if err != nil {
			t.Fatalf("first Seal failed: %v", err)
		}
		s2, err := Seal(key, plaintext, nil)
		if err != nil {
			t.Fatalf("second Seal failed: %v", err)
		}
		if bytes.Equal(s1, s2) {
			t.Fatalf("sealing is deterministic - nonce is not random")
		}
	})
}

// TestCrypto_Open_RejectsTampering tests that a wrong key, a flipped byte,
// truncation or different additional data all fail to open.
func TestCrypto_Open_RejectsTampering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		key := keyGen().Draw(t, "key")
		other := keyGen().Filter(func(b []byte) bool { return !bytes.Equal(b, key) }).Draw(t, "other")
		plaintext := rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(t, "plaintext")
		aad := []byte("auth-state/run.json")

		sealed, err := Seal(key, plaintext, aad)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}

		if _, err := Open(other, sealed, aad); err == nil {
			t.Fatal("Open accepted the wrong key")
		}
		if _, err := Open(key, sealed, []byte("auth-state/other.json")); err == nil {
			t.Fatal("Open accepted different additional data")
		}

		pos := rapid.IntRange(0, len(sealed)-1).Draw(t, "pos")
		modified := bytes.Clone(sealed)
		modified[pos] ^= 0xFF
		if _, err := Open(key, modified, aad); err == nil {
			t.Fatalf("Open accepted data modified at %d", pos)
		}

		cut := rapid.IntRange(0, NonceSize+tagSize-1).Draw(t, "cut")
		if _, err := Open(key, sealed[:cut], aad); err == nil {
			t.Fatalf("Open accepted data truncated to %d bytes", cut)
		}
	})
}

// TestCrypto_InvalidKeySize tests that Seal and Open reject keys of the wrong size.
func TestCrypto_InvalidKeySize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 100).Filter(func(n int) bool { return n != KeySize }).Draw(t, "n")
		key := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "key")

		if _, err := Seal(key, []byte("x"), nil); err == nil {
			t.Fatalf("Seal accepted key of %d bytes", n)
		}
		if _, err := Open(key, make([]byte, NonceSize+tagSize+1), nil); err == nil {
			t.Fatalf("Open accepted key of %d bytes", n)
		}
	})
}

func TestParseMasterKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, KeySize)

	for name, encoded := range map[string]string{
		"hex":    hex.EncodeToString(raw),
		"base64": base64.StdEncoding.EncodeToString(raw),
		"padded": "  " + hex.EncodeToString(raw) + "\n",
	} {
		got, err := ParseMasterKey(encoded)
		if err != nil {
			t.Fatalf("%s: ParseMasterKey failed: %v", name, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("%s: got %x, want %x", name, got, raw)
		}
	}

	for _, bad := range []string{"", "not-a-key", hex.EncodeToString(raw[:16]), base64.StdEncoding.EncodeToString(raw[:31])} {
		if _, err := ParseMasterKey(bad); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("ParseMasterKey(%q) error = %v, want ErrInvalidKey", bad, err)
		}
	}
}

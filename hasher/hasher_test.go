package hasher

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHashFile(t *testing.T) {
	tmp, err := os.CreateTemp("", "hash-test")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	defer os.Remove(tmp.Name())
	tmp.WriteString("hello world")
	tmp.Close()

	sum, err := HashFile(tmp.Name(), SHA256)
	if err != nil {
		t.Fatalf("sha256: %v", err)
	}
	if sum != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("sha256 mismatch: %s", sum)
	}

	sum, err = HashFile(tmp.Name(), "")
	if err != nil || sum != "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9" {
		t.Errorf("empty algorithm should default to sha256, got %s (%v)", sum, err)
	}

	sum, err = HashFile(tmp.Name(), SHA512)
	if err != nil {
		t.Fatalf("sha512: %v", err)
	}
	if !strings.HasPrefix(sum, "309ecc489c12d6eb4cc40f50c902f2b4d0ed77ee511a7c7a9bcd3ca86d4cd86f") {
		t.Errorf("sha512 mismatch: %s", sum)
	}

	sum, err = HashFile(tmp.Name(), BLAKE3)
	if err != nil {
		t.Fatalf("blake3: %v", err)
	}
	if len(sum) != DigestLength(BLAKE3) {
		t.Errorf("blake3 digest length %d", len(sum))
	}

	if _, err := HashFile(tmp.Name(), "crc32"); err == nil {
		t.Errorf("expected error for unsupported algorithm")
	}
}

func TestHashFileMissing(t *testing.T) {
	if _, err := HashFile(filepath.Join(t.TempDir(), "absent"), SHA256); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHashFileLargeMatchesStream(t *testing.T) {
	data := bytes.Repeat([]byte("integrity"), (mmapThreshold/9)+1024)
	path := filepath.Join(t.TempDir(), "large.bin")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	mapped, err := HashFile(path, SHA256)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	sum := sha256.Sum256(data)
	streamed := hex.EncodeToString(sum[:])
	if mapped != streamed {
		t.Fatalf("mapped digest %s != streamed digest %s", mapped, streamed)
	}
}

func TestSupported(t *testing.T) {
	for _, algo := range []string{"sha256", "SHA512", "blake3"} {
		if !Supported(algo) {
			t.Errorf("expected %s supported", algo)
		}
	}
	if Supported("md5") {
		t.Error("md5 must not be accepted for integrity hashing")
	}
	if DigestLength(SHA256) != 64 || DigestLength(SHA512) != 128 {
		t.Error("unexpected digest lengths")
	}
}

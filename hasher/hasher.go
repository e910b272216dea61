package hasher

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/exp/mmap"
	"lukechampine.com/blake3"
)

const (
	hashBufferSmallSize      = 32 * 1024
	hashBufferLargeSize      = 128 * 1024
	hashLargeBufferThreshold = 256 * 1024

	// Files at or above this size are hashed through a read-only mapping.
	mmapThreshold = 4 * 1024 * 1024
)

const (
	SHA256 = "sha256"
	SHA512 = "sha512"
	BLAKE3 = "blake3"

	DefaultAlgorithm = SHA256
)

var hashBufferSmallPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferSmallSize)
		return &buf
	},
}

var hashBufferLargePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, hashBufferLargeSize)
		return &buf
	},
}

var openMmapReader = mmap.Open

// Supported reports whether the named algorithm can be used for content hashing.
func Supported(algorithm string) bool {
	_, err := newHash(algorithm)
	return err == nil
}

// DigestLength returns the hex length of digests produced by the algorithm.
func DigestLength(algorithm string) int {
	h, err := newHash(algorithm)
	if err != nil {
		return 0
	}
	return h.Size() * 2
}

func newHash(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case BLAKE3:
		return blake3.New(32, nil), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// HashFile returns the lowercase hex digest of the file's content.
func HashFile(path, algorithm string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", err
	}

	if info.Size() >= mmapThreshold {
		if digest, err := hashMapped(path, h); err == nil {
			return digest, nil
		}
		h.Reset()
	}

	bufferPool := &hashBufferSmallPool
	if info.Size() >= hashLargeBufferThreshold {
		bufferPool = &hashBufferLargePool
	}
	bufferPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufferPtr)

	if _, err := io.CopyBuffer(h, file, *bufferPtr); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func hashMapped(path string, h hash.Hash) (string, error) {
	reader, err := openMmapReader(path)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	bufferPtr := hashBufferLargePool.Get().(*[]byte)
	defer hashBufferLargePool.Put(bufferPtr)

	section := io.NewSectionReader(reader, 0, int64(reader.Len()))
	if _, err := io.CopyBuffer(h, section, *bufferPtr); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

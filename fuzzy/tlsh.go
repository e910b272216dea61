package fuzzy

import (
	"bufio"
	"fmt"
	"os"

	"github.com/glaslos/tlsh"
)

// TLSH needs a minimum amount of input to produce a digest; very large
// files are skipped to bound the cost of a cycle.
const (
	TLSHMinSize = 256
	TLSHMaxSize = 32 * 1024 * 1024
)

type TLSHHasher struct{}

func (TLSHHasher) Name() string { return Default }

// HashFile digests a regular file whose size falls within the TLSH bounds.
func (TLSHHasher) HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if size := info.Size(); size < TLSHMinSize || size > TLSHMaxSize {
		return "", fmt.Errorf("tlsh: %s: size %d outside [%d, %d]", path, size, TLSHMinSize, TLSHMaxSize)
	}

	digest, err := tlsh.HashReader(bufio.NewReaderSize(f, 64*1024))
	if err != nil {
		return "", fmt.Errorf("tlsh: %s: %w", path, err)
	}
	return digest.String(), nil
}

func (TLSHHasher) Distance(a, b string) (int, error) {
	left, err := tlsh.ParseStringToTlsh(a)
	if err != nil {
		return 0, fmt.Errorf("tlsh: parse %q: %w", a, err)
	}
	right, err := tlsh.ParseStringToTlsh(b)
	if err != nil {
		return 0, fmt.Errorf("tlsh: parse %q: %w", b, err)
	}
	return left.Diff(right), nil
}

func init() {
	Register(TLSHHasher{})
}

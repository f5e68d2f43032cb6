// Package hash handles pip-style requirement hashes: "algo:hexdigest"
// pins as accepted by pip install --require-hashes.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"
)

// Algorithm is the digest algorithm used for generated hashes.
const Algorithm = "sha256"

var pinRE = regexp.MustCompile(`^([a-z0-9]+):([0-9a-f]+)$`)

// digest lengths in hex characters for the algorithms pip accepts
var digestLengths = map[string]int{
	"sha256": 64,
	"sha384": 96,
	"sha512": 128,
}

// Parse splits a hash pin into algorithm and digest, validating shape and
// digest length.
func Parse(pin string) (algorithm, digest string, err error) {
	m := pinRE.FindStringSubmatch(pin)
	if m == nil {
		return "", "", fmt.Errorf("invalid hash pin %q: want algo:hexdigest", pin)
	}
	algorithm, digest = m[1], m[2]
	want, ok := digestLengths[algorithm]
	if !ok {
		return "", "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
	if len(digest) != want {
		return "", "", fmt.Errorf("invalid %s digest length: %d", algorithm, len(digest))
	}
	return algorithm, digest, nil
}

// Valid reports whether pin is a well-formed hash pin.
func Valid(pin string) bool {
	_, _, err := Parse(pin)
	return err == nil
}

// FileHash computes the sha256 pin of a local file.
func FileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return Algorithm + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

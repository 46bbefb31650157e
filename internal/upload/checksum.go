package upload

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/dmitrop/storeflight/internal/asc"
)

// chunked reads bound memory while hashing large binaries
const checksumBufferSize = 8 * 1024 * 1024

// FileChecksums streams the file once and returns its sha256 and md5
// digests in hex.
func FileChecksums(path string) (*asc.Checksums, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sha := sha256.New()
	md := md5.New()

	buf := make([]byte, checksumBufferSize)
	if _, err := io.CopyBuffer(io.MultiWriter(sha, md), f, buf); err != nil {
		return nil, err
	}

	return &asc.Checksums{
		SHA256: hex.EncodeToString(sha.Sum(nil)),
		MD5:    hex.EncodeToString(md.Sum(nil)),
	}, nil
}

package tree

import (
	"crypto/md5"
	"encoding/hex"
	"io"

	"github.com/spf13/afero"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// HashAlgorithm names the digest the transfer protocol exchanges with the
// data service.
const HashAlgorithm = "md5"

// HashFile streams a file through md5 and returns the hex digest.
func HashFile(appFs afero.Fs, path string) (string, error) {
	f, err := appFs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open for hashing")
	}
	defer f.Close()

	digest := md5.New()
	if _, err := io.Copy(digest, f); err != nil {
		return "", errors.WithContext(err, "hash file")
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// HashBytes returns the hex md5 digest of a byte slice, used for chunk
// hashes held in memory.
func HashBytes(data []byte) string {
	digest := md5.Sum(data)
	return hex.EncodeToString(digest[:])
}

package sync

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// digestChunkSize bounds memory use while hashing, independent of file size.
const digestChunkSize = 32 * 1024

// Digest is a content checksum used only for equality comparison against the
// remote inventory. The remote side hashes with md5sum, so the local digest
// must be MD5 as well.
type Digest struct {
	Sum         string
	Unavailable bool
}

func (d Digest) Equal(other string) bool {
	return !d.Unavailable && d.Sum == other
}

// FileDigest hashes the file at path in bounded chunks. A file that cannot be
// read (permissions, removed mid-scan) yields an unavailable digest instead of
// an error; callers treat it as "content unknown, must upload".
func FileDigest(path string) Digest {
	f, err := os.Open(path)
	if err != nil {
		return Digest{Unavailable: true}
	}
	defer f.Close()
	return ReadDigest(f)
}

// ReadDigest hashes an already-open stream.
func ReadDigest(r io.Reader) Digest {
	h := md5.New()
	buf := make([]byte, digestChunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return Digest{Unavailable: true}
	}
	return Digest{Sum: hex.EncodeToString(h.Sum(nil))}
}

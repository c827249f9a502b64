package cql

import (
	"crypto/md5"
	"encoding/hex"
)

// Checksum returns the hex-encoded MD5 digest of the UTF-8 bytes of s. This
// is a durability contract: existing persisted checksums depend on this
// exact algorithm and encoding never changing.
func Checksum(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

package crypto

import "crypto/md5"

// MD5Size is the byte width of an MD5 digest, matching fingerprint.Size.
const MD5Size = 16

// MD5 returns the MD5 digest of b. Used exclusively for checksums (chunk
// payload verification, archive index footer hashing) — never for anything
// security sensitive.
func MD5(b []byte) [MD5Size]byte {
	return md5.Sum(b)
}

// MD5Slice is MD5 with a slice return, convenient at call sites that compare
// against a variable-length "all zero means skip verification" sentinel.
func MD5Slice(b []byte) []byte {
	sum := md5.Sum(b)
	return sum[:]
}

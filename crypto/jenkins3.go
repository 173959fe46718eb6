package crypto

// Jenkins3 implements Bob Jenkins' "lookup3" hash (hashlittle / hashlittle2),
// used by the root manifest to map file paths to lookup hashes. No
// third-party Go package implements this exact variant — the ecosystem hash
// choices seen elsewhere in the retrieved pack (xxhash, the multihash
// family) are not bit-compatible with it — so it is hand-ported from the
// public domain reference algorithm and pinned to the published test
// vectors (spec §8.1 invariant 9).
//
// This only implements the portable byte-at-a-time code path of the
// reference C implementation. lookup3's aligned-read fast paths are a pure
// optimization: by construction they produce the same digest as the byte
// path for the same input on a little-endian machine, which is the only
// property this port needs to preserve.

func rot(x uint32, k uint) uint32 {
	return (x << k) | (x >> (32 - k))
}

func mix(a, b, c uint32) (uint32, uint32, uint32) {
	a -= c
	a ^= rot(c, 4)
	c += b
	b -= a
	b ^= rot(a, 6)
	a += c
	c -= b
	c ^= rot(b, 8)
	b += a
	a -= c
	a ^= rot(c, 16)
	c += b
	b -= a
	b ^= rot(a, 19)
	a += c
	c -= b
	c ^= rot(b, 4)
	b += a
	return a, b, c
}

func final(a, b, c uint32) (uint32, uint32, uint32) {
	c ^= b
	c -= rot(b, 14)
	a ^= c
	a -= rot(c, 11)
	b ^= a
	b -= rot(a, 25)
	c ^= b
	c -= rot(b, 16)
	a ^= c
	a -= rot(c, 4)
	b ^= a
	b -= rot(a, 14)
	c ^= b
	c -= rot(b, 24)
	return a, b, c
}

// HashLittle2 is the two-output variant of lookup3: pc and pb are the
// initial values for the primary and secondary hash respectively, and the
// returned pair are the corresponding final hashes.
func HashLittle2(key []byte, pc, pb uint32) (uint32, uint32) {
	length := len(key)
	a := 0xdeadbeef + uint32(length) + pc
	b := a
	c := a + pb

	k := key
	for len(k) > 12 {
		a += uint32(k[0]) | uint32(k[1])<<8 | uint32(k[2])<<16 | uint32(k[3])<<24
		b += uint32(k[4]) | uint32(k[5])<<8 | uint32(k[6])<<16 | uint32(k[7])<<24
		c += uint32(k[8]) | uint32(k[9])<<8 | uint32(k[10])<<16 | uint32(k[11])<<24
		a, b, c = mix(a, b, c)
		k = k[12:]
	}

	switch len(k) {
	case 12:
		c += uint32(k[11]) << 24
		fallthrough
	case 11:
		c += uint32(k[10]) << 16
		fallthrough
	case 10:
		c += uint32(k[9]) << 8
		fallthrough
	case 9:
		c += uint32(k[8])
		fallthrough
	case 8:
		b += uint32(k[7]) << 24
		fallthrough
	case 7:
		b += uint32(k[6]) << 16
		fallthrough
	case 6:
		b += uint32(k[5]) << 8
		fallthrough
	case 5:
		b += uint32(k[4])
		fallthrough
	case 4:
		a += uint32(k[3]) << 24
		fallthrough
	case 3:
		a += uint32(k[2]) << 16
		fallthrough
	case 2:
		a += uint32(k[1]) << 8
		fallthrough
	case 1:
		a += uint32(k[0])
	case 0:
		return c, b
	}

	a, b, c = final(a, b, c)
	return c, b
}

// HashLittle is the single-output form of lookup3, used for root manifest
// path-hash lookups where only the primary hash is needed.
func HashLittle(key []byte, initval uint32) uint32 {
	pc, _ := HashLittle2(key, initval, 0)
	return pc
}

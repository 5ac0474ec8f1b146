package schema

// StringHash is Irmo's djb2-style string hash, used to fold variable,
// class, argument, and method names into the structural hash. Grounded
// bit-for-bit on original_source/src/common/hash-string.c.
func StringHash(s string) uint32 {
	h := uint32(5381)
	for i := 0; i < len(s); i++ {
		h = ((h << 5) ^ h) ^ uint32(s[i])
	}
	return h
}

func rotl1(x uint32) uint32 {
	return x<<1 | x>>31
}

package protocol

// ReconstructSequence recovers a full 32-bit stream position from its
// wire-transmitted low 16 bits, given the reconstructing side's current
// 32-bit position. Of the candidates within the three adjacent 65536-
// windows around current, the closest one wins (§4.5: "choosing, of the
// two candidates within ±32768 of the local start, the closer one").
func ReconstructSequence(current uint32, low16 uint16) uint32 {
	base := int64(current) &^ 0xFFFF

	best := base + int64(low16)
	bestDiff := absDiff64(int64(current), best)

	for _, delta := range [2]int64{-0x10000, 0x10000} {
		cand := base + delta + int64(low16)
		if cand < 0 {
			continue
		}
		if d := absDiff64(int64(current), cand); d < bestDiff {
			best, bestDiff = cand, d
		}
	}
	return uint32(best)
}

func absDiff64(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

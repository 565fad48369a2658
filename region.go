package flashkv

// regionFor maps a hashed key to its primary region.
//
// Hash values 0 and 0xFFFF_FFFF_FFFF_FFFF are reserved: 0xFF..FF is
// indistinguishable from erased flash and 0 from a torn write. A hash
// function that produces either violates its contract, so this is a
// panic rather than an error.
func (s *Store) regionFor(hashedKey uint64) int {
	if hashedKey == 0 || hashedKey == ^uint64(0) {
		panic("flashkv: hash function produced a reserved value")
	}
	return int(hashedKey&0xFFFF) % s.numRegions()
}

// nextProbe advances the probe walk over alternate regions. Relative to
// the primary region the sequence is 0, +1, -1, +2, -2, +3, -3, ...,
// skipping offsets whose absolute region index falls outside the store.
// It returns the next offset to try after cur, and false once both
// directions have run off the valid range.
//
// Writers and readers share this walk, so both converge on the same
// region for a given key without any shared free-space index.
func (s *Store) nextProbe(primary, cur int) (int, bool) {
	n := s.numRegions()
	tooBig := false
	tooSmall := false

	for !tooBig || !tooSmall {
		switch {
		case cur == 0:
			cur = 1
		case cur > 0:
			cur = -cur
		default:
			cur = -cur + 1
		}

		if primary+cur > n-1 {
			tooBig = true
			continue
		}
		if primary+cur < 0 {
			tooSmall = true
			continue
		}
		return cur, true
	}

	return 0, false
}

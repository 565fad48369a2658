package flashkv

import (
	"encoding/binary"
	"hash"
)

// Version is the on-flash object format version.
const Version uint8 = 1

// On-flash object layout: header ++ payload ++ checksum.
//
//	byte 0      version
//	byte 1      flags (high nibble) | top 4 bits of length (low nibble)
//	byte 2      low 8 bits of length
//	bytes 3-10  hashed key, big endian
//
// The length covers the whole object including header and checksum, so
// it fits in 12 bits. The checksum is the 64-bit key-hash function fed
// the header bytes then the payload bytes, serialized little endian.
const (
	versionOffset = 0
	lenOffset     = 1
	hashOffset    = 3
	headerLen     = hashOffset + 8
	checksumLen   = 8

	// maxObjectLen is the largest encodable total object length.
	maxObjectLen = 0xFFF

	// emptyByte is the value erased flash reads back as.
	emptyByte = 0xFF

	// flagValid is bit 3 of the 4-bit flag field. It is written as part
	// of the initial append and cleared, alone, to invalidate an object.
	flagValid = 0x8
)

// objectHeader is the decoded form of the 11 header bytes.
type objectHeader struct {
	version   uint8
	flags     uint8
	length    uint16 // total object length: header + payload + checksum
	hashedKey uint64
}

func newObjectHeader(hashedKey uint64, length int) objectHeader {
	if length > maxObjectLen {
		panic("flashkv: object length exceeds 12 bits")
	}
	return objectHeader{
		version:   Version,
		flags:     flagValid,
		length:    uint16(length),
		hashedKey: hashedKey,
	}
}

func (h objectHeader) valid() bool {
	return h.flags&flagValid != 0
}

// encode writes the 11 header bytes into dst.
func (h objectHeader) encode(dst []byte) {
	dst[versionOffset] = h.version
	dst[lenOffset] = byte(h.length>>8)&0x0F | h.flags<<4&0xF0
	dst[lenOffset+1] = byte(h.length)
	binary.BigEndian.PutUint64(dst[hashOffset:hashOffset+8], h.hashedKey)
}

// decodeHeader parses the header at the start of b. It does not check
// the version byte; callers distinguish empty slots and unsupported
// versions before calling.
func decodeHeader(b []byte) objectHeader {
	return objectHeader{
		version:   b[versionOffset],
		flags:     b[lenOffset] >> 4,
		length:    uint16(b[lenOffset]&0x0F)<<8 | uint16(b[lenOffset+1]),
		hashedKey: binary.BigEndian.Uint64(b[hashOffset : hashOffset+8]),
	}
}

// slotKind classifies the bytes at an offset inside a region.
type slotKind int

const (
	slotObject slotKind = iota
	slotEmpty
	slotCorrupt
	slotUnsupported
)

// classifySlot inspects region starting at off. For slotObject the
// returned header is valid; for the other kinds it is zero.
//
// A slot is corrupt when its version byte is non-empty but the encoded
// length is zero: erased flash is all 0xFF, so a zero length can only
// come from a torn or interrupted write.
func classifySlot(region []byte, off int) (objectHeader, slotKind) {
	if region[off+versionOffset] == emptyByte {
		return objectHeader{}, slotEmpty
	}
	if region[off+versionOffset] != Version {
		return objectHeader{}, slotUnsupported
	}
	hdr := decodeHeader(region[off:])
	if hdr.length == 0 {
		return objectHeader{}, slotCorrupt
	}
	return hdr, slotObject
}

// emptySlotClean reports whether the hashed-key bytes of the slot at
// off still read as erased flash. A version byte of 0xFF with stray
// hash bytes means an interrupted write landed here.
func emptySlotClean(region []byte, off int) bool {
	for _, b := range region[off+hashOffset : off+hashOffset+8] {
		if b != emptyByte {
			return false
		}
	}
	return true
}

// checksum runs header and payload through a fresh hash instance and
// returns the 8 serialized digest bytes.
func checksum(h hash.Hash64, header, payload []byte) [checksumLen]byte {
	h.Write(header)
	h.Write(payload)
	var sum [checksumLen]byte
	binary.LittleEndian.PutUint64(sum[:], h.Sum64())
	return sum
}

package flashkv

import (
	"bytes"
	"hash"
)

// ObjectInfo describes one object found while walking a region's raw
// bytes.
type ObjectInfo struct {
	Offset    int
	HashedKey uint64
	ValueLen  int
	Live      bool

	// ChecksumOK is set by VerifyRegionData for live objects. Deleted
	// objects are not verifiable: invalidation flips a header bit after
	// the checksum was written.
	ChecksumOK bool
}

// ScanRegionData walks the raw bytes of one region and returns the
// objects it holds, live and deleted. It is pure and needs no Store, so
// callers may run it over many regions concurrently. The walk aborts
// with ErrUnsupportedVersion or ErrCorruptData on a bad header rather
// than skipping it.
func ScanRegionData(data []byte) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	off := 0
	for off+headerLen < len(data) {
		hdr, kind := classifySlot(data, off)
		switch kind {
		case slotEmpty:
			return objects, nil
		case slotUnsupported:
			return nil, ErrUnsupportedVersion
		case slotCorrupt:
			return nil, ErrCorruptData
		}

		if int(hdr.length) < headerLen+checksumLen || off+int(hdr.length) > len(data) {
			return nil, ErrCorruptData
		}

		objects = append(objects, ObjectInfo{
			Offset:    off,
			HashedKey: hdr.hashedKey,
			ValueLen:  int(hdr.length) - headerLen - checksumLen,
			Live:      hdr.valid(),
		})
		off += int(hdr.length)
	}

	return objects, nil
}

// VerifyRegionData scans one region and recomputes the checksum of
// every live object, reporting the result in each ObjectInfo.
func VerifyRegionData(data []byte, newHash func() hash.Hash64) ([]ObjectInfo, error) {
	objects, err := ScanRegionData(data)
	if err != nil {
		return nil, err
	}

	for i, obj := range objects {
		if !obj.Live {
			continue
		}
		end := obj.Offset + headerLen + obj.ValueLen
		sum := checksum(newHash(), data[obj.Offset:obj.Offset+headerLen], data[obj.Offset+headerLen:end])
		objects[i].ChecksumOK = bytes.Equal(sum[:], data[end:end+checksumLen])
	}

	return objects, nil
}

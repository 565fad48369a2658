package flashkv

import (
	"bytes"
	"errors"
	"fmt"
	"hash"
)

// sentinelKey marks an initialised store. Initialise probes for it and,
// if the probe fails, formats the flash and writes it with an empty
// payload into whatever region its hash selects.
var sentinelKey = []byte("flashkv-super-key")

// ioKind tags the resumption state carried across a suspend point.
type ioKind int

const (
	ioNone ioKind = iota
	ioRead
	ioErase
)

// pendingIO records that an asynchronous region access will have
// completed by the time the suspended operation is re-entered. It is
// set immediately before a not-ready status is returned and consumed at
// the first storage access of the next call.
type pendingIO struct {
	kind   ioKind
	region int
}

// initPhase records which part of Initialise was interrupted, so a
// resumed Initialise does not re-probe or re-erase completed work.
type initPhase int

const (
	initIdle initPhase = iota
	initErase
	initAppend
)

// Store is the key-value engine. It owns a single region-sized scratch
// buffer and assumes one operation in flight at a time: operations are
// not reentrant, and starting a new one while another is suspended is a
// caller error (AsyncStore enforces this).
type Store struct {
	flash      Flash
	flashSize  int
	regionSize int
	newHash    func() hash.Hash64

	// readBuf holds the most recently read region. It is lent to the
	// driver for the duration of each ReadRegion call and reclaimed
	// before the call returns.
	readBuf []byte

	pending pendingIO
	phase   initPhase
	gcFreed int
}

// New creates a Store on top of the given flash driver. flashSize and
// regionSize are fixed at store-creation time; changing regionSize
// invalidates the addressing of existing data.
func New(flash Flash, flashSize, regionSize int, opts ...Option) (*Store, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if flash == nil {
		return nil, errors.New("flashkv: nil flash driver")
	}
	if regionSize < headerLen+checksumLen {
		return nil, fmt.Errorf("flashkv: region size %d cannot hold a minimal object (%d bytes)", regionSize, headerLen+checksumLen)
	}
	if flashSize < regionSize || flashSize%regionSize != 0 {
		return nil, fmt.Errorf("flashkv: flash size %d is not a multiple of region size %d", flashSize, regionSize)
	}

	return &Store{
		flash:      flash,
		flashSize:  flashSize,
		regionSize: regionSize,
		newHash:    options.NewHash,
		readBuf:    make([]byte, regionSize),
	}, nil
}

// RegionSize returns the erase-unit size the store was created with.
func (s *Store) RegionSize() int { return s.regionSize }

// Regions returns the number of regions in the store.
func (s *Store) Regions() int { return s.numRegions() }

func (s *Store) numRegions() int { return s.flashSize / s.regionSize }

// hashAndRegion hashes the key and maps it to its primary region.
func (s *Store) hashAndRegion(key []byte) (uint64, int) {
	h := s.newHash()
	h.Write(key)
	sum := h.Sum64()
	return sum, s.regionFor(sum)
}

// readRegion fills the scratch buffer with the region's bytes, unless a
// just-completed asynchronous read already placed them there.
func (s *Store) readRegion(region int) error {
	if s.pending.kind == ioRead && s.pending.region == region {
		s.pending = pendingIO{}
		return nil
	}
	if err := s.flash.ReadRegion(region, 0, s.readBuf); err != nil {
		var nr *ReadNotReadyError
		if errors.As(err, &nr) {
			s.pending = pendingIO{kind: ioRead, region: nr.Region}
		}
		return err
	}
	return nil
}

// eraseRegion erases one region, recording resumption state if the
// driver completes the erase asynchronously.
func (s *Store) eraseRegion(region int) error {
	if err := s.flash.EraseRegion(region); err != nil {
		var ne *EraseNotReadyError
		if errors.As(err, &ne) {
			s.pending = pendingIO{kind: ioErase, region: ne.Region}
		}
		return err
	}
	return nil
}

// findObject scans the scratch buffer for a live object with the given
// hashed key. On a miss, cont reports whether neighboring regions are
// still worth searching: a wholly empty region ends the probe chain,
// since no writer ever places a key past the first empty region it
// reaches.
func (s *Store) findObject(hashedKey uint64) (off int, hdr objectHeader, cont bool, err error) {
	empty := true

	for off+headerLen < s.regionSize {
		hdr, kind := classifySlot(s.readBuf, off)
		switch kind {
		case slotEmpty:
			return 0, objectHeader{}, !empty, ErrKeyNotFound
		case slotUnsupported:
			return 0, objectHeader{}, false, ErrUnsupportedVersion
		case slotCorrupt:
			return 0, objectHeader{}, false, ErrCorruptData
		}

		empty = false
		if !hdr.valid() || hdr.hashedKey != hashedKey {
			off += int(hdr.length)
			continue
		}

		if int(hdr.length) < headerLen+checksumLen || off+int(hdr.length) > s.regionSize {
			return 0, objectHeader{}, false, ErrCorruptData
		}
		return off, hdr, false, nil
	}

	return 0, objectHeader{}, false, ErrKeyNotFound
}

// Append stores a new key/value pair. The write is a single contiguous
// flash program of header, payload and checksum, so a power loss either
// leaves the old empty slot or a complete object, never a half record
// that a later Get would trust.
//
// Appending a key that already has a live object fails with
// ErrKeyAlreadyExists; invalidate it first.
func (s *Store) Append(key, value []byte) error {
	hashedKey, primary := s.hashAndRegion(key)

	packageLen := headerLen + len(value)
	objectLen := packageLen + checksumLen
	if objectLen > maxObjectLen {
		return ErrObjectTooLarge
	}
	hdr := newObjectHeader(hashedKey, objectLen)

	probe := 0
	for {
		target := primary + probe
		if s.pending.kind == ioRead {
			target = s.pending.region
		}
		if err := s.readRegion(target); err != nil {
			return err
		}

		_, _, _, err := s.findObject(hashedKey)
		switch {
		case err == nil:
			return ErrKeyAlreadyExists
		case errors.Is(err, ErrUnsupportedVersion), errors.Is(err, ErrCorruptData):
			return err
		}

		full := false
		off := 0
		for !full {
			if off+objectLen > s.regionSize {
				full = true
				continue
			}

			slotHdr, kind := classifySlot(s.readBuf, off)
			switch kind {
			case slotUnsupported:
				return ErrUnsupportedVersion
			case slotCorrupt:
				return ErrCorruptData
			case slotObject:
				off += int(slotHdr.length)
				continue
			}

			// Found the first empty slot. The hashed-key bytes must
			// still read as erased flash; anything else is the residue
			// of a torn write.
			if !emptySlotClean(s.readBuf, off) {
				return ErrCorruptData
			}

			hdr.encode(s.readBuf[off:])
			copy(s.readBuf[off+headerLen:off+packageLen], value)
			sum := checksum(s.newHash(), s.readBuf[off:off+headerLen], value)
			copy(s.readBuf[off+packageLen:off+objectLen], sum[:])

			return s.flash.Write(s.regionSize*target+off, s.readBuf[off:off+objectLen])
		}

		probe = target - primary
		next, ok := s.nextProbe(primary, probe)
		if !ok {
			return ErrStoreFull
		}
		probe = next
	}
}

// Get copies the value stored under key into buf and returns its
// length. The stored checksum is recomputed over header and payload and
// compared before the call succeeds; a mismatch is ErrInvalidChecksum,
// never a silently wrong value. If buf cannot hold the value, Get fails
// with *BufferTooSmallError carrying the required length.
func (s *Store) Get(key, buf []byte) (int, error) {
	hashedKey, primary := s.hashAndRegion(key)

	probe := 0
	for {
		target := primary + probe
		if s.pending.kind == ioRead {
			target = s.pending.region
		}
		if err := s.readRegion(target); err != nil {
			return 0, err
		}

		off, hdr, cont, err := s.findObject(hashedKey)
		if err == nil {
			valueLen := int(hdr.length) - headerLen - checksumLen
			if len(buf) < valueLen {
				return 0, &BufferTooSmallError{Required: valueLen}
			}
			copy(buf, s.readBuf[off+headerLen:off+headerLen+valueLen])

			sum := checksum(s.newHash(), s.readBuf[off:off+headerLen], buf[:valueLen])
			stored := s.readBuf[off+int(hdr.length)-checksumLen : off+int(hdr.length)]
			if !bytes.Equal(sum[:], stored) {
				return 0, ErrInvalidChecksum
			}
			return valueLen, nil
		}

		if !cont {
			return 0, err
		}
		probe = target - primary
		next, ok := s.nextProbe(primary, probe)
		if !ok {
			return 0, err
		}
		probe = next
	}
}

// Invalidate marks the live object for key as deleted by clearing the
// VALID bit with a single one-byte write. Payload and checksum are left
// untouched; the space is reclaimed by GarbageCollect once the whole
// region is dead.
func (s *Store) Invalidate(key []byte) error {
	hashedKey, primary := s.hashAndRegion(key)

	probe := 0
	for {
		target := primary + probe
		if s.pending.kind == ioRead {
			target = s.pending.region
		}
		if err := s.readRegion(target); err != nil {
			return err
		}

		off, _, cont, err := s.findObject(hashedKey)
		if err == nil {
			s.readBuf[off+lenOffset] &^= flagValid << 4
			return s.flash.Write(s.regionSize*target+off+lenOffset, s.readBuf[off+lenOffset:off+lenOffset+1])
		}

		if !cont {
			return err
		}
		probe = target - primary
		next, ok := s.nextProbe(primary, probe)
		if !ok {
			return err
		}
		probe = next
	}
}

// Zeroise invalidates the object for key and overwrites its payload and
// checksum with zeros in one contiguous write. The header's length and
// hashed key are preserved so region scans still walk past the object.
//
// Flash programming only drives bits from 1 to 0, so the old value is
// not securely destroyed on every part; check the hardware's data sheet
// before relying on this for secrets.
func (s *Store) Zeroise(key []byte) error {
	hashedKey, primary := s.hashAndRegion(key)

	probe := 0
	for {
		target := primary + probe
		if s.pending.kind == ioRead {
			target = s.pending.region
		}
		if err := s.readRegion(target); err != nil {
			return err
		}

		off, hdr, cont, err := s.findObject(hashedKey)
		if err == nil {
			s.readBuf[off+lenOffset] &^= flagValid << 4
			for i := off + headerLen; i < off+int(hdr.length); i++ {
				s.readBuf[i] = 0
			}
			return s.flash.Write(s.regionSize*target+off, s.readBuf[off:off+int(hdr.length)])
		}

		if !cont {
			return err
		}
		probe = target - primary
		next, ok := s.nextProbe(primary, probe)
		if !ok {
			return err
		}
		probe = next
	}
}

// gcRegion scans one region and erases it when it holds at least one
// object and none of them are live. Returns the number of bytes freed.
func (s *Store) gcRegion(region int) (int, error) {
	if err := s.readRegion(region); err != nil {
		return 0, err
	}

	found := false
	off := 0
scan:
	for off+headerLen < s.regionSize {
		hdr, kind := classifySlot(s.readBuf, off)
		switch kind {
		case slotEmpty:
			if !found {
				// Genuinely empty region, nothing to reclaim.
				return 0, nil
			}
			break scan
		case slotUnsupported:
			return 0, ErrUnsupportedVersion
		case slotCorrupt:
			return 0, ErrCorruptData
		}

		found = true
		if hdr.valid() {
			// A live object keeps the whole region.
			return 0, nil
		}
		off += int(hdr.length)
	}

	if !found {
		return 0, nil
	}

	if err := s.eraseRegion(region); err != nil {
		return 0, err
	}
	return s.regionSize, nil
}

// GarbageCollect erases every region whose objects are all invalidated
// and returns the total number of bytes freed. Regions holding any live
// object are left byte-for-byte unchanged. Each region's scan and erase
// is individually suspend-capable; the freed total survives suspension.
func (s *Store) GarbageCollect() (int, error) {
	start := 0
	switch s.pending.kind {
	case ioRead:
		// The suspended region's bytes are in the scratch buffer;
		// gcRegion will consume them.
		start = s.pending.region
	case ioErase:
		s.gcFreed += s.regionSize
		start = s.pending.region + 1
		s.pending = pendingIO{}
	}

	freed := s.gcFreed
	for r := start; r < s.numRegions(); r++ {
		n, err := s.gcRegion(r)
		if err != nil {
			if NotReady(err) {
				s.gcFreed = freed
			} else {
				s.gcFreed = 0
			}
			return 0, err
		}
		freed += n
	}

	s.gcFreed = 0
	return freed, nil
}

// Initialise prepares the flash for use as a key-value store. If the
// sentinel key is already present no changes are made. Otherwise every
// region is erased and the sentinel is appended with an empty payload.
//
// A not-ready status during the sentinel probe propagates rather than
// triggering erasure; only a terminal probe failure formats the store.
func (s *Store) Initialise() error {
	if s.phase == initIdle {
		_, err := s.Get(sentinelKey, nil)
		if err == nil {
			return nil
		}
		if NotReady(err) {
			return err
		}
		s.phase = initErase
	}

	if s.phase == initErase {
		start := 0
		if s.pending.kind == ioErase {
			start = s.pending.region + 1
			s.pending = pendingIO{}
		}
		for r := start; r < s.numRegions(); r++ {
			if err := s.eraseRegion(r); err != nil {
				if !NotReady(err) {
					s.phase = initIdle
				}
				return err
			}
		}
		s.phase = initAppend
	}

	err := s.Append(sentinelKey, nil)
	if err == nil || !NotReady(err) {
		s.phase = initIdle
	}
	return err
}

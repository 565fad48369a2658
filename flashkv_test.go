package flashkv

import (
	"bytes"
	"errors"
	"testing"
)

// memFlash is a synchronous in-memory flash device. Writes AND bytes
// into place, matching real parts where programming only drives bits
// from 1 to 0.
type memFlash struct {
	data       []byte
	regionSize int
	erases     int
}

func newMemFlash(flashSize, regionSize int) *memFlash {
	data := make([]byte, flashSize)
	for i := range data {
		data[i] = 0xFF
	}
	return &memFlash{data: data, regionSize: regionSize}
}

func (f *memFlash) ReadRegion(region, offset int, buf []byte) error {
	copy(buf, f.data[region*f.regionSize+offset:])
	return nil
}

func (f *memFlash) Write(addr int, data []byte) error {
	for i, b := range data {
		f.data[addr+i] &= b
	}
	return nil
}

func (f *memFlash) EraseRegion(region int) error {
	f.erases++
	for i := 0; i < f.regionSize; i++ {
		f.data[region*f.regionSize+i] = 0xFF
	}
	return nil
}

func (f *memFlash) regionBytes(region int) []byte {
	return f.data[region*f.regionSize : (region+1)*f.regionSize]
}

func newTestStore(t *testing.T, flashSize, regionSize int) (*Store, *memFlash) {
	t.Helper()
	flash := newMemFlash(flashSize, regionSize)
	store, err := New(flash, flashSize, regionSize)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	return store, flash
}

func TestNewRejectsBadGeometry(t *testing.T) {
	flash := newMemFlash(4096, 1024)

	if _, err := New(nil, 4096, 1024); err == nil {
		t.Fatal("nil flash accepted")
	}
	if _, err := New(flash, 4096, 18); err == nil {
		t.Fatal("region too small for a minimal object accepted")
	}
	if _, err := New(flash, 4000, 1024); err == nil {
		t.Fatal("flash size not a multiple of region size accepted")
	}
}

func TestAppendGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	value := bytes.Repeat([]byte{0x23}, 32)
	if err := store.Append([]byte("ONE"), value); err != nil {
		t.Fatalf("Append: %v", err)
	}

	buf := make([]byte, 64)
	n, err := store.Get([]byte("ONE"), buf)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n != 32 || !bytes.Equal(buf[:n], value) {
		t.Fatalf("Get returned %d bytes % x", n, buf[:n])
	}
}

func TestAppendEmptyValue(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	if err := store.Append([]byte("ONE"), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	n, err := store.Get([]byte("ONE"), nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n != 0 {
		t.Fatalf("Get returned %d bytes for empty value", n)
	}
}

func TestAppendDuplicateKey(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	if err := store.Append([]byte("ONE"), []byte("first")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append([]byte("ONE"), []byte("second")); !errors.Is(err, ErrKeyAlreadyExists) {
		t.Fatalf("duplicate Append: %v, want ErrKeyAlreadyExists", err)
	}

	// The original value is untouched by the failed append.
	buf := make([]byte, 16)
	n, err := store.Get([]byte("ONE"), buf)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(buf[:n]) != "first" {
		t.Fatalf("Get = %q, want %q", buf[:n], "first")
	}
}

func TestGetMissingKey(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	if _, err := store.Get([]byte("ONE"), make([]byte, 8)); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get: %v, want ErrKeyNotFound", err)
	}
}

func TestGetBufferTooSmall(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	value := bytes.Repeat([]byte{0x23}, 32)
	if err := store.Append([]byte("ONE"), value); err != nil {
		t.Fatalf("Append: %v", err)
	}

	_, err := store.Get([]byte("ONE"), make([]byte, 8))
	var tooSmall *BufferTooSmallError
	if !errors.As(err, &tooSmall) {
		t.Fatalf("Get: %v, want *BufferTooSmallError", err)
	}
	if tooSmall.Required != 32 {
		t.Fatalf("Required = %d, want 32", tooSmall.Required)
	}
}

func TestAppendObjectTooLarge(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	value := make([]byte, maxObjectLen-headerLen-checksumLen+1)
	if err := store.Append([]byte("ONE"), value); !errors.Is(err, ErrObjectTooLarge) {
		t.Fatalf("Append: %v, want ErrObjectTooLarge", err)
	}
}

func TestAppendValueLargerThanRegion(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	// Fits the 12-bit length field but no region can hold it.
	value := make([]byte, 2000)
	if err := store.Append([]byte("ONE"), value); !errors.Is(err, ErrStoreFull) {
		t.Fatalf("Append: %v, want ErrStoreFull", err)
	}
}

func TestInvalidateThenReappend(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	if err := store.Append([]byte("ONE"), []byte("first")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Invalidate([]byte("ONE")); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := store.Get([]byte("ONE"), make([]byte, 16)); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get after Invalidate: %v, want ErrKeyNotFound", err)
	}
	if err := store.Invalidate([]byte("ONE")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("second Invalidate: %v, want ErrKeyNotFound", err)
	}

	if err := store.Append([]byte("ONE"), []byte("second")); err != nil {
		t.Fatalf("re-Append: %v", err)
	}
	buf := make([]byte, 16)
	n, err := store.Get([]byte("ONE"), buf)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(buf[:n]) != "second" {
		t.Fatalf("Get = %q, want %q", buf[:n], "second")
	}
}

func TestInvalidateMissingKey(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	if err := store.Invalidate([]byte("ONE")); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Invalidate: %v, want ErrKeyNotFound", err)
	}
}

func TestZeroiseClearsStoredBytes(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	value := bytes.Repeat([]byte{0x23}, 32)
	if err := store.Append([]byte("ONE"), value); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Zeroise([]byte("ONE")); err != nil {
		t.Fatalf("Zeroise: %v", err)
	}

	if _, err := store.Get([]byte("ONE"), make([]byte, 64)); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get after Zeroise: %v, want ErrKeyNotFound", err)
	}

	// ONE's primary region is 3. Payload and checksum must read zero,
	// but the header must still carry the length so scans walk past.
	objects, err := ScanRegionData(flash.regionBytes(3))
	if err != nil {
		t.Fatalf("ScanRegionData: %v", err)
	}
	if len(objects) != 1 || objects[0].Live || objects[0].ValueLen != 32 {
		t.Fatalf("unexpected scan result %+v", objects)
	}
	start := objects[0].Offset + headerLen
	for i, b := range flash.regionBytes(3)[start : start+32+checksumLen] {
		if b != 0 {
			t.Fatalf("byte %d after Zeroise = %#x, want 0", i, b)
		}
	}
}

func TestGetDetectsCorruptPayload(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	value := bytes.Repeat([]byte{0x23}, 32)
	if err := store.Append([]byte("ONE"), value); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// ONE lives in region 3; flip one payload bit behind the store's
	// back.
	flash.regionBytes(3)[headerLen+4] ^= 0x10

	if _, err := store.Get([]byte("ONE"), make([]byte, 64)); !errors.Is(err, ErrInvalidChecksum) {
		t.Fatalf("Get: %v, want ErrInvalidChecksum", err)
	}
}

func TestGetUnsupportedVersion(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	if err := store.Append([]byte("TWO"), []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// TWO lives in region 1; bump its version byte.
	flash.regionBytes(1)[versionOffset] = 2

	if _, err := store.Get([]byte("TWO"), make([]byte, 8)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("Get: %v, want ErrUnsupportedVersion", err)
	}
}

func TestAppendOverflowsToNeighborRegion(t *testing.T) {
	store, _ := newTestStore(t, 4096, 1024)

	// alpha, beta, ONE, THREE and SIX all map to region 3. Values are
	// sized so region 3 fills and later keys spill into the probe
	// chain, yet every one of them stays retrievable.
	keys := []string{"alpha", "beta", "ONE", "THREE", "SIX"}
	value := bytes.Repeat([]byte{0x42}, 300)

	for _, key := range keys {
		if err := store.Append([]byte(key), value); err != nil {
			t.Fatalf("Append %s: %v", key, err)
		}
	}

	buf := make([]byte, 512)
	for _, key := range keys {
		n, err := store.Get([]byte(key), buf)
		if err != nil {
			t.Fatalf("Get %s: %v", key, err)
		}
		if n != 300 || !bytes.Equal(buf[:n], value) {
			t.Fatalf("Get %s returned %d bytes", key, n)
		}
	}
}

func TestAppendStoreFull(t *testing.T) {
	flash := newMemFlash(4*32, 32)
	store, err := New(flash, 4*32, 32)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// One 27-byte object fills a 32-byte region. No room for the
	// sentinel here, so skip Initialise and drive the raw store.
	value := bytes.Repeat([]byte{0x23}, 8)
	for _, key := range []string{"alpha", "gamma", "delta", "EIGHT"} {
		if err := store.Append([]byte(key), value); err != nil {
			t.Fatalf("Append %s: %v", key, err)
		}
	}

	if err := store.Append([]byte("beta"), value); !errors.Is(err, ErrStoreFull) {
		t.Fatalf("Append beta: %v, want ErrStoreFull", err)
	}
}

func TestGarbageCollectReclaimsDeadRegion(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	value := bytes.Repeat([]byte{0x23}, 32)
	if err := store.Append([]byte("ONE"), value); err != nil {
		t.Fatalf("Append ONE: %v", err)
	}
	if err := store.Append([]byte("TWO"), value); err != nil {
		t.Fatalf("Append TWO: %v", err)
	}

	// Nothing dead yet: nothing to reclaim.
	freed, err := store.GarbageCollect()
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if freed != 0 {
		t.Fatalf("freed %d bytes with no dead objects", freed)
	}

	if err := store.Invalidate([]byte("ONE")); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	// Region 3 holds only dead ONE; regions 0 (sentinel) and 1 (TWO)
	// have live objects and must survive untouched.
	freed, err = store.GarbageCollect()
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if freed != 1024 {
		t.Fatalf("freed %d bytes, want 1024", freed)
	}
	if flash.erases != 1 {
		t.Fatalf("%d regions erased, want 1", flash.erases)
	}

	buf := make([]byte, 64)
	if n, err := store.Get([]byte("TWO"), buf); err != nil || n != 32 {
		t.Fatalf("Get TWO after gc: n=%d err=%v", n, err)
	}
	if _, err := store.Get([]byte("ONE"), buf); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get ONE after gc: %v, want ErrKeyNotFound", err)
	}

	// The reclaimed region is usable again.
	if err := store.Append([]byte("ONE"), value); err != nil {
		t.Fatalf("Append after gc: %v", err)
	}
}

func TestGarbageCollectKeepsMixedRegion(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	// ONE and THREE share region 3; kill only ONE.
	if err := store.Append([]byte("ONE"), []byte("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append([]byte("THREE"), []byte("b")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Invalidate([]byte("ONE")); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	freed, err := store.GarbageCollect()
	if err != nil {
		t.Fatalf("GarbageCollect: %v", err)
	}
	if freed != 0 || flash.erases != 0 {
		t.Fatalf("freed=%d erases=%d, want 0/0", freed, flash.erases)
	}

	buf := make([]byte, 8)
	if n, err := store.Get([]byte("THREE"), buf); err != nil || string(buf[:n]) != "b" {
		t.Fatalf("Get THREE: %q, %v", buf[:n], err)
	}
}

func TestInitialiseIsIdempotent(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	if err := store.Append([]byte("ONE"), []byte("keep")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	erases := flash.erases
	if err := store.Initialise(); err != nil {
		t.Fatalf("second Initialise: %v", err)
	}
	if flash.erases != erases {
		t.Fatal("repeated Initialise erased regions")
	}

	buf := make([]byte, 8)
	if n, err := store.Get([]byte("ONE"), buf); err != nil || string(buf[:n]) != "keep" {
		t.Fatalf("Get after re-Initialise: %q, %v", buf[:n], err)
	}
}

func TestInitialiseFormatsForeignContents(t *testing.T) {
	flash := newMemFlash(4096, 1024)
	for i := range flash.data {
		flash.data[i] = 0xAB
	}

	store, err := New(flash, 4096, 1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Initialise(); err != nil {
		t.Fatalf("Initialise: %v", err)
	}
	if flash.erases != 4 {
		t.Fatalf("%d regions erased, want 4", flash.erases)
	}

	// Formatted store works normally.
	if err := store.Append([]byte("ONE"), []byte("v")); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestScanRegionData(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	if err := store.Append([]byte("ONE"), []byte("abc")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append([]byte("THREE"), []byte("defgh")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Invalidate([]byte("ONE")); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	objects, err := ScanRegionData(flash.regionBytes(3))
	if err != nil {
		t.Fatalf("ScanRegionData: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("found %d objects, want 2", len(objects))
	}
	if objects[0].Live || objects[0].ValueLen != 3 {
		t.Fatalf("first object %+v", objects[0])
	}
	if !objects[1].Live || objects[1].ValueLen != 5 {
		t.Fatalf("second object %+v", objects[1])
	}
	if objects[1].Offset != objects[0].Offset+headerLen+3+checksumLen {
		t.Fatalf("second object at offset %d", objects[1].Offset)
	}
}

func TestVerifyRegionData(t *testing.T) {
	store, flash := newTestStore(t, 4096, 1024)

	if err := store.Append([]byte("ONE"), []byte("abc")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	objects, err := VerifyRegionData(flash.regionBytes(3), store.newHash)
	if err != nil {
		t.Fatalf("VerifyRegionData: %v", err)
	}
	if len(objects) != 1 || !objects[0].ChecksumOK {
		t.Fatalf("verify result %+v", objects)
	}

	flash.regionBytes(3)[headerLen] ^= 0x04
	objects, err = VerifyRegionData(flash.regionBytes(3), store.newHash)
	if err != nil {
		t.Fatalf("VerifyRegionData: %v", err)
	}
	if objects[0].ChecksumOK {
		t.Fatal("corrupted payload passed verification")
	}
}

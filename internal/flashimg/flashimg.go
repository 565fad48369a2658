// Package flashimg implements the flash driver interface on top of a
// flat image file, so the store can be exercised and inspected without
// real hardware.
//
// The image is the raw flash content byte for byte. Flash semantics are
// enforced: writes can only drive bits from 1 to 0, and only a region
// erase brings bytes back to 0xFF. A new image starts fully erased.
package flashimg

import (
	"fmt"
	"os"
)

// eraseByte is the value erased flash reads back as.
const eraseByte = 0xFF

// Image is a file-backed flash device. Reads and writes go through a
// per-region cache; every write and erase is flushed to the file before
// returning, so the image on disk never trails the cache.
//
// Image is safe for concurrent reads. Writes and erases assume a single
// writer, matching the one-operation-at-a-time store engine.
type Image struct {
	file       *os.File
	path       string
	flashSize  int
	regionSize int

	cache *regionCache
}

// Open opens or creates a flash image at path. A missing or empty file
// is initialised to flashSize bytes of erased flash; an existing file
// must match flashSize exactly.
func Open(path string, flashSize, regionSize int) (*Image, error) {
	if regionSize <= 0 || flashSize < regionSize || flashSize%regionSize != 0 {
		return nil, fmt.Errorf("flash size %d is not a multiple of region size %d", flashSize, regionSize)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat image: %w", err)
	}

	switch info.Size() {
	case 0:
		if err := initialise(file, flashSize); err != nil {
			file.Close()
			return nil, err
		}
	case int64(flashSize):
	default:
		file.Close()
		return nil, fmt.Errorf("image is %d bytes, expected %d", info.Size(), flashSize)
	}

	return &Image{
		file:       file,
		path:       path,
		flashSize:  flashSize,
		regionSize: regionSize,
		cache:      newRegionCache(16),
	}, nil
}

// initialise fills a fresh image with erased flash.
func initialise(file *os.File, flashSize int) error {
	blank := make([]byte, flashSize)
	for i := range blank {
		blank[i] = eraseByte
	}
	if _, err := file.WriteAt(blank, 0); err != nil {
		return fmt.Errorf("failed to initialise image: %w", err)
	}
	return nil
}

// Path returns the image file path.
func (img *Image) Path() string { return img.path }

// Size returns the flash size in bytes.
func (img *Image) Size() int { return img.flashSize }

// RegionSize returns the erase-unit size in bytes.
func (img *Image) RegionSize() int { return img.regionSize }

// Regions returns the number of erase regions.
func (img *Image) Regions() int { return img.flashSize / img.regionSize }

// ReadRegion reads region bytes starting at offset into buf.
func (img *Image) ReadRegion(region, offset int, buf []byte) error {
	data, err := img.regionBytes(region)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(buf) > img.regionSize {
		return fmt.Errorf("read of %d bytes at offset %d exceeds region size %d", len(buf), offset, img.regionSize)
	}
	copy(buf, data[offset:])
	return nil
}

// Write programs data at the absolute byte address addr. Bits already
// at 0 stay at 0: the programmed byte is the AND of the old and new
// values, as on real parts.
func (img *Image) Write(addr int, data []byte) error {
	if addr < 0 || addr+len(data) > img.flashSize {
		return fmt.Errorf("write of %d bytes at address %d exceeds flash size %d", len(data), addr, img.flashSize)
	}

	first := addr / img.regionSize
	last := (addr + len(data) - 1) / img.regionSize

	for region := first; region <= last; region++ {
		cached, err := img.regionBytes(region)
		if err != nil {
			return err
		}

		base := region * img.regionSize
		lo := max(addr, base)
		hi := min(addr+len(data), base+img.regionSize)

		for i := lo; i < hi; i++ {
			cached[i-base] &= data[i-addr]
		}

		if _, err := img.file.WriteAt(cached[lo-base:hi-base], int64(lo)); err != nil {
			img.cache.remove(region)
			return fmt.Errorf("failed to write image: %w", err)
		}
	}
	return nil
}

// EraseRegion resets every byte of the region to 0xFF.
func (img *Image) EraseRegion(region int) error {
	if region < 0 || region >= img.Regions() {
		return fmt.Errorf("region %d out of range", region)
	}

	blank := make([]byte, img.regionSize)
	for i := range blank {
		blank[i] = eraseByte
	}

	if _, err := img.file.WriteAt(blank, int64(region*img.regionSize)); err != nil {
		img.cache.remove(region)
		return fmt.Errorf("failed to erase region %d: %w", region, err)
	}
	img.cache.add(region, blank)
	return nil
}

// regionBytes returns the cached region contents, reading from the
// file on a miss. The returned slice is the cache's copy.
func (img *Image) regionBytes(region int) ([]byte, error) {
	if region < 0 || region >= img.Regions() {
		return nil, fmt.Errorf("region %d out of range", region)
	}
	if data, ok := img.cache.get(region); ok {
		return data, nil
	}

	data := make([]byte, img.regionSize)
	if _, err := img.file.ReadAt(data, int64(region*img.regionSize)); err != nil {
		return nil, fmt.Errorf("failed to read region %d: %w", region, err)
	}
	img.cache.add(region, data)
	return data, nil
}

// Sync flushes the image file to stable storage.
func (img *Image) Sync() error {
	return img.file.Sync()
}

// Close syncs and closes the image file.
func (img *Image) Close() error {
	if err := img.file.Sync(); err != nil {
		img.file.Close()
		return err
	}
	return img.file.Close()
}

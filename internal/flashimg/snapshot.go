package flashimg

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Snapshot format: a 16-byte header followed by the zstd-compressed
// raw image.
//
//	bytes 0-7   magic "flashkv\x01"
//	bytes 8-11  region size, big endian
//	bytes 12-15 flash size, big endian
var snapshotMagic = [8]byte{'f', 'l', 'a', 's', 'h', 'k', 'v', 1}

// Export writes a compressed snapshot of the image to w. Raw flash
// compresses well: erased regions are runs of 0xFF.
func (img *Image) Export(w io.Writer) error {
	raw := make([]byte, img.flashSize)
	if _, err := img.file.ReadAt(raw, 0); err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return err
	}
	compressed := encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4))
	encoder.Close()

	header := make([]byte, 16)
	copy(header, snapshotMagic[:])
	binary.BigEndian.PutUint32(header[8:12], uint32(img.regionSize))
	binary.BigEndian.PutUint32(header[12:16], uint32(img.flashSize))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}
	if _, err := w.Write(compressed); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Restore reads a snapshot from r, writes the decompressed image to
// path and opens it. The region and flash sizes come from the snapshot
// header.
func Restore(path string, r io.Reader) (*Image, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(raw) < 16 || [8]byte(raw[:8]) != snapshotMagic {
		return nil, fmt.Errorf("not a flash image snapshot")
	}

	regionSize := int(binary.BigEndian.Uint32(raw[8:12]))
	flashSize := int(binary.BigEndian.Uint32(raw[12:16]))

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	image, err := decoder.DecodeAll(raw[16:], make([]byte, 0, flashSize))
	decoder.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	if len(image) != flashSize {
		return nil, fmt.Errorf("snapshot holds %d bytes, header says %d", len(image), flashSize)
	}

	if err := os.WriteFile(path, image, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	return Open(path, flashSize, regionSize)
}

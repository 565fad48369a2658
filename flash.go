package flashkv

// Flash is the storage driver the engine runs on. Implementations wrap
// the actual NOR/NAND controller, a memory-mapped device, or a flash
// image file (see internal/flashimg).
//
// ReadRegion and EraseRegion may complete asynchronously: the driver
// returns *ReadNotReadyError or *EraseNotReadyError immediately and
// finishes the access in the background. The engine never retries
// internally; the not-ready status propagates to the caller, which
// resumes through AsyncStore once the driver signals completion.
//
// Write must complete synchronously. The append and invalidate paths
// treat a returned nil as "durably written"; a driver that queues
// writes can return *WriteNotReadyError, which the engine passes
// through untouched.
type Flash interface {
	// ReadRegion reads the region's bytes starting at offset into buf.
	ReadRegion(region, offset int, buf []byte) error

	// Write programs data at the absolute byte address addr. Flash
	// semantics apply: only 1->0 bit transitions, no erase implied.
	Write(addr int, data []byte) error

	// EraseRegion resets every byte of the region to 0xFF.
	EraseRegion(region int) error
}

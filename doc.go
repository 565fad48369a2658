// Package flashkv provides a log-structured key-value store for raw
// flash, addressed by hashed keys and reclaimed one erase region at a
// time.
//
// Keys are hashed to 64 bits and the hash picks a home region; on
// overflow the store probes neighboring regions outward. Each object is
// written once as header, payload and checksum, deleted by clearing a
// single header bit, and physically reclaimed only when every object in
// its region is dead and the region can be erased whole.
//
// Basic usage over a synchronous flash driver:
//
//	store, _ := flashkv.New(driver, flashSize, regionSize)
//	store.Initialise()
//
//	store.Append([]byte("sensor-cal"), data)
//
//	buf := make([]byte, 64)
//	n, _ := store.Get([]byte("sensor-cal"), buf)
//
//	store.Invalidate([]byte("sensor-cal"))
//	freed, _ := store.GarbageCollect()
//
// Drivers that complete reads or erases asynchronously return not-ready
// statuses; wrap the store in an AsyncStore and resume suspended
// operations with Continue. See AsyncStore for the full protocol.
package flashkv

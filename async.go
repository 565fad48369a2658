package flashkv

// operation identifies which Store call a suspended AsyncStore replays.
type operation int

const (
	opNone operation = iota
	opInitialise
	opAppend
	opGet
	opInvalidate
	opZeroise
	opGarbageCollect
)

// AsyncStore wraps a Store for use with an asynchronous flash driver.
//
// When an operation returns a not-ready status, the wrapper keeps the
// operation kind and its exact arguments. Once the driver signals that
// the pending access finished, the caller makes read data visible with
// SetReadBuffer (reads only) and calls Continue, which re-dispatches
// the stored operation. The engine redoes the cheap in-memory work of
// the interrupted step but skips the storage access that already
// completed, so no mid-function state is ever serialized.
//
// Buffers handed to a suspended operation belong to the wrapper until
// the operation produces a terminal result.
type AsyncStore struct {
	store *Store

	op    operation
	key   []byte
	value []byte
	buf   []byte
}

// NewAsync wraps store. The store must not be used directly while any
// wrapped operation is pending.
func NewAsync(store *Store) *AsyncStore {
	return &AsyncStore{store: store}
}

// Store returns the wrapped engine.
func (a *AsyncStore) Store() *Store { return a.store }

// Pending reports whether an operation is suspended awaiting storage.
func (a *AsyncStore) Pending() bool { return a.op != opNone }

// SetReadBuffer copies the data of a completed asynchronous region read
// into the engine's scratch buffer. It must be called before Continue
// when the pending access was a read.
func (a *AsyncStore) SetReadBuffer(data []byte) {
	copy(a.store.readBuf, data)
}

func (a *AsyncStore) start(op operation, key, value, buf []byte) error {
	if a.op != opNone {
		return ErrOperationPending
	}
	a.op = op
	a.key = key
	a.value = value
	a.buf = buf
	return nil
}

// settle clears the pending operation unless err is a resumable status.
func (a *AsyncStore) settle(err error) {
	if err != nil && NotReady(err) {
		return
	}
	a.op = opNone
	a.key = nil
	a.value = nil
	a.buf = nil
}

// Initialise runs Store.Initialise, retaining state across not-ready
// statuses so the caller can resume with Continue.
func (a *AsyncStore) Initialise() error {
	if err := a.start(opInitialise, nil, nil, nil); err != nil {
		return err
	}
	err := a.store.Initialise()
	a.settle(err)
	return err
}

// Append stores key/value, suspending on a not-ready status.
func (a *AsyncStore) Append(key, value []byte) error {
	if err := a.start(opAppend, key, value, nil); err != nil {
		return err
	}
	err := a.store.Append(key, value)
	a.settle(err)
	return err
}

// Get retrieves the value for key into buf, suspending on a not-ready
// status. buf must stay untouched by the caller until the operation
// settles.
func (a *AsyncStore) Get(key, buf []byte) (int, error) {
	if err := a.start(opGet, key, nil, buf); err != nil {
		return 0, err
	}
	n, err := a.store.Get(key, buf)
	a.settle(err)
	return n, err
}

// Invalidate marks key deleted, suspending on a not-ready status.
func (a *AsyncStore) Invalidate(key []byte) error {
	if err := a.start(opInvalidate, key, nil, nil); err != nil {
		return err
	}
	err := a.store.Invalidate(key)
	a.settle(err)
	return err
}

// Zeroise invalidates key and zero-fills its stored value, suspending
// on a not-ready status.
func (a *AsyncStore) Zeroise(key []byte) error {
	if err := a.start(opZeroise, key, nil, nil); err != nil {
		return err
	}
	err := a.store.Zeroise(key)
	a.settle(err)
	return err
}

// GarbageCollect reclaims dead regions, suspending on a not-ready
// status. The freed byte count accumulates across suspensions.
func (a *AsyncStore) GarbageCollect() (int, error) {
	if err := a.start(opGarbageCollect, nil, nil, nil); err != nil {
		return 0, err
	}
	n, err := a.store.GarbageCollect()
	a.settle(err)
	return n, err
}

// Continue re-dispatches the suspended operation after a pending region
// read or erase has completed. For reads, SetReadBuffer must be called
// first. The int result is the value length for Get and the bytes freed
// for GarbageCollect; zero otherwise.
//
// Another not-ready status keeps the operation pending for a further
// Continue; any terminal result clears it.
func (a *AsyncStore) Continue() (int, error) {
	var n int
	var err error

	switch a.op {
	case opInitialise:
		err = a.store.Initialise()
	case opAppend:
		err = a.store.Append(a.key, a.value)
	case opGet:
		n, err = a.store.Get(a.key, a.buf)
	case opInvalidate:
		err = a.store.Invalidate(a.key)
	case opZeroise:
		err = a.store.Zeroise(a.key)
	case opGarbageCollect:
		n, err = a.store.GarbageCollect()
	default:
		return 0, ErrNoPendingOperation
	}

	a.settle(err)
	return n, err
}

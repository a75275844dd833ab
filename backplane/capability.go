package backplane

import "context"

// Disposable releases a resource held by a Capability, such as a
// subscription. Calling Dispose more than once is a no-op.
type Disposable interface {
	Dispose()
}

type disposerFunc func()

func (f disposerFunc) Dispose() { f() }

// Callback receives one published value for a subscribed handle.
type Callback func(TagValue)

// Capability is the contract shared by the in-memory backplane and the
// remote gRPC-backed backplane, so a plugin host can swap one for the
// other without the tag service noticing the difference.
type Capability interface {
	// Publish overwrites the mirror entry for handle and fans the value out
	// to every live subscriber of that handle.
	Publish(ctx context.Context, value TagValue) error

	// GetLastValue reads the mirror entry for handle, if any.
	GetLastValue(ctx context.Context, handle uint32) (TagValue, bool, error)

	// Subscribe registers cb to be invoked for every future Publish on
	// handle. The returned Disposable removes the subscription.
	Subscribe(ctx context.Context, handle uint32, cb Callback) (Disposable, error)

	// Close tears down the capability; subsequent operations return
	// dcerrors.ErrDisposed.
	Close() error
}

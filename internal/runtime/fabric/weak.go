package fabric

import (
	"reflect"
	"unsafe"
	"weak"
)

// ConnectWeak subscribes target without keeping it alive. Once the garbage
// collector reclaims target the entry is skipped during fan-out and removed
// on the next post.
//
//	fanout.ConnectWeak[Event](f, receiver)
func ConnectWeak[M, T any, P interface {
	*T
	Sink[M]
}](f *Fanout[M], target P) P {
	if target == nil {
		return nil
	}
	ref := weak.Make((*T)(target))
	key := pointerKey{typ: reflect.TypeOf(target), addr: uintptr(unsafe.Pointer(target))}
	f.add(key, func() (Sink[M], bool) {
		strong := ref.Value()
		if strong == nil {
			return nil, false
		}
		return P(strong), true
	})
	return target
}

package fabric

import "reflect"

// pointerKey identifies reference-like sinks by dynamic type and address so a
// strong and a weak entry for the same object compare equal.
type pointerKey struct {
	typ  reflect.Type
	addr uintptr
}

// identityOf returns the key Disconnect matches entries by, or nil when the
// sink has no stable identity (non-comparable values).
//
// Pointers, maps, channels and funcs compare by address. Funcs therefore only
// match the exact same function value; closures created per call never do,
// which is what Subscribe and Subscription.Cancel are for.
func identityOf(sink any) any {
	if sink == nil {
		return nil
	}
	v := reflect.ValueOf(sink)
	switch v.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func:
		return pointerKey{typ: v.Type(), addr: v.Pointer()}
	}
	if v.Comparable() {
		return sink
	}
	return nil
}

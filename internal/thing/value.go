package thing

import (
	"fmt"
	"reflect"
	"sync"
)

// Forwarder pushes a requested value to the physical device.
//
// It runs before the stored value changes. Returning an error leaves the
// Value untouched and nothing is notified.
type Forwarder func(v any) error

// Value is a single observable cell holding the current reading or setting
// of a property.
//
// Writers are serialised: the forwarder, the store and the observer call for
// one write all complete before the next write to the same Value starts.
// Readers never wait for a slow forwarder.
type Value struct {
	// writeMu serialises Set and ReportExternalUpdate end to end.
	writeMu sync.Mutex

	mu       sync.RWMutex
	last     any
	forward  Forwarder
	observer func(v any)
}

// NewValue creates a Value holding initial.
//
// A nil forwarder makes the Value sensor-only: it can still be updated with
// ReportExternalUpdate, but Set returns ErrNoForwarder.
func NewValue(initial any, forward Forwarder) *Value {
	return &Value{
		last:    initial,
		forward: forward,
	}
}

// Get returns the stored value without side effects.
func (v *Value) Get() any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.last
}

// Writable reports whether the Value has a forwarder.
func (v *Value) Writable() bool {
	return v.forward != nil
}

// Set forwards x to the device and then applies it as an external update.
//
// Returns:
//   - error: ErrNoForwarder for sensor-only values, or ErrForwardFailed
//     wrapping the forwarder's error
func (v *Value) Set(x any) error {
	if v.forward == nil {
		return ErrNoForwarder
	}

	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	if err := v.forward(x); err != nil {
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	v.applyLocked(x)
	return nil
}

// ReportExternalUpdate records a value reported by the device itself.
//
// No validation is applied since the device is ground truth. The observer is
// called once when x differs from the stored value and not at all otherwise.
//
// Returns:
//   - bool: true if the stored value changed
func (v *Value) ReportExternalUpdate(x any) bool {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return v.applyLocked(x)
}

// applyLocked stores x and notifies the observer. writeMu must be held.
func (v *Value) applyLocked(x any) bool {
	v.mu.Lock()
	if valuesEqual(v.last, x) {
		v.mu.Unlock()
		return false
	}
	v.last = x
	observer := v.observer
	v.mu.Unlock()

	if observer != nil {
		observer(x)
	}
	return true
}

// observe installs the single observer, replacing any previous one.
func (v *Value) observe(fn func(x any)) {
	v.mu.Lock()
	v.observer = fn
	v.mu.Unlock()
}

// valuesEqual compares two decoded values. Numbers compare by magnitude so an
// int from YAML equals the float64 decoded from a JSON request.
func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

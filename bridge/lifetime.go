package bridge

import (
	"context"
	"sync/atomic"
)

// Ref-counting slots of a CEF-style base struct.
const (
	SlotAddRef           = "add_ref"
	SlotRelease          = "release"
	SlotHasOneRef        = "has_one_ref"
	SlotHasAtLeastOneRef = "has_at_least_one_ref"
)

// Object is a ref-counted native object whose lifetime is tracked in Go. The
// count starts at 1; when native code releases the last reference, the bridge
// tears the object down.
type Object struct {
	bridge    *Bridge
	onDestroy func(self uint32)
	table     Table
	bindings  []*Binding
	refs      atomic.Int32
	destroyed atomic.Bool
}

// TrackOption configures Track.
type TrackOption func(*Object)

// OnDestroy runs fn after the object is torn down.
func OnDestroy(fn func(self uint32)) TrackOption {
	return func(o *Object) {
		o.onDestroy = fn
	}
}

// Track binds the ref-counting slots under basePath ("base" for CEF structs,
// "" when the table is the base itself).
func (b *Bridge) Track(table Table, basePath string, opts ...TrackOption) (*Object, error) {
	o := &Object{bridge: b, table: table}
	o.refs.Store(1)
	for _, opt := range opts {
		opt(o)
	}

	slots := []struct {
		name string
		cb   CallbackFunc
	}{
		{SlotAddRef, o.addRef},
		{SlotRelease, o.release},
		{SlotHasOneRef, o.hasOneRef},
		{SlotHasAtLeastOneRef, o.hasAtLeastOneRef},
	}
	for _, s := range slots {
		path := s.name
		if basePath != "" {
			path = basePath + "." + s.name
		}
		binding, err := b.Patch(table, path, s.cb)
		if err != nil {
			o.Close()
			return nil, err
		}
		o.bindings = append(o.bindings, binding)
	}
	return o, nil
}

// Self is the tracked object's address.
func (o *Object) Self() uint32 {
	return o.table.Self
}

// Refs is the current reference count.
func (o *Object) Refs() int32 {
	return o.refs.Load()
}

// Destroyed reports whether the last reference was released.
func (o *Object) Destroyed() bool {
	return o.destroyed.Load()
}

// Close stops tracking without tearing down, restoring the ref-counting slots.
func (o *Object) Close() {
	for _, binding := range o.bindings {
		_ = binding.Close()
	}
}

func (o *Object) addRef(_ context.Context, _ *Call) error {
	if !o.destroyed.Load() {
		o.refs.Add(1)
	}
	return nil
}

func (o *Object) release(_ context.Context, call *Call) error {
	if o.destroyed.Load() {
		call.SetResult(Int32(0))
		return nil
	}
	if o.refs.Add(-1) > 0 {
		call.SetResult(Int32(0))
		return nil
	}
	if !o.destroyed.CompareAndSwap(false, true) {
		call.SetResult(Int32(0))
		return nil
	}
	o.bridge.Teardown(o.table.Self)
	if o.onDestroy != nil {
		o.onDestroy(o.table.Self)
	}
	call.SetResult(Int32(1))
	return nil
}

func (o *Object) hasOneRef(_ context.Context, call *Call) error {
	call.SetResult(Bool(o.refs.Load() == 1))
	return nil
}

func (o *Object) hasAtLeastOneRef(_ context.Context, call *Call) error {
	call.SetResult(Bool(o.refs.Load() >= 1))
	return nil
}

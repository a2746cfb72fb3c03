package bridge

import (
	"testing"
)

var refCountedSlots = []slotRef{
	{setCookie, "base.add_ref"},
	{setCookie, "base.release"},
	{setCookie, "base.has_one_ref"},
	{setCookie, "base.has_at_least_one_ref"},
	{setCookie, "on_complete"},
}

func TestTrack_ReleaseTearsDown(t *testing.T) {
	f := newFixture(t, refCountedSlots)
	const self = 0x100
	rec := newRecorder()

	var destroyed []uint32
	obj, err := f.b.Track(f.table(t, self, setCookie), "base", OnDestroy(func(self uint32) {
		destroyed = append(destroyed, self)
	}))
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	f.patch(t, self, setCookie, "on_complete", rec.onComplete())
	if obj.Self() != self || obj.Refs() != 1 {
		t.Fatalf("object = self 0x%x refs %d", obj.Self(), obj.Refs())
	}

	if res := f.fire(t, "has_one_ref", self); res[0] != 1 {
		t.Errorf("has_one_ref = %d, want 1", res[0])
	}
	f.fire(t, "add_ref", self)
	if res := f.fire(t, "has_one_ref", self); res[0] != 0 {
		t.Errorf("has_one_ref with 2 refs = %d", res[0])
	}
	if res := f.fire(t, "has_at_least_one_ref", self); res[0] != 1 {
		t.Errorf("has_at_least_one_ref = %d", res[0])
	}

	if res := f.fire(t, "release", self); res[0] != 0 {
		t.Errorf("first release = %d, want 0", res[0])
	}
	f.fire(t, "on_complete", self, 1)
	if len(rec.get(self)) != 1 {
		t.Fatal("on_complete not routed while alive")
	}

	if res := f.fire(t, "release", self); res[0] != 1 {
		t.Errorf("last release = %d, want 1", res[0])
	}
	if !obj.Destroyed() || len(destroyed) != 1 || destroyed[0] != self {
		t.Errorf("destroyed = %v, %v", obj.Destroyed(), destroyed)
	}
	if f.b.Len() != 0 {
		t.Errorf("Len = %d after last release", f.b.Len())
	}

	// the native side may still call through stale slots
	f.fire(t, "on_complete", self, 1)
	if len(rec.get(self)) != 1 {
		t.Error("on_complete reached after destruction")
	}
	if res := f.fire(t, "release", self); res[0] != 0 {
		t.Errorf("release after destruction = %d", res[0])
	}
	if s := f.b.Stats(); s.Teardowns != 5 || s.Fallbacks != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTrack_Close(t *testing.T) {
	f := newFixture(t, refCountedSlots)
	const self = 0x100

	obj, err := f.b.Track(f.table(t, self, setCookie), "base")
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if f.b.Len() != 4 {
		t.Fatalf("Len = %d, want 4", f.b.Len())
	}
	obj.Close()
	if f.b.Len() != 0 || obj.Destroyed() {
		t.Errorf("Len = %d, destroyed = %v", f.b.Len(), obj.Destroyed())
	}
	for off := uint32(4); off <= 16; off += 4 {
		if v := f.slot(t, self+off); v != 0 {
			t.Errorf("slot +%d = %d, want restored 0", off, v)
		}
	}
}

func TestTrack_MissingTrampoline(t *testing.T) {
	f := newFixture(t, []slotRef{{setCookie, "base.add_ref"}, {setCookie, "base.release"}})
	if _, err := f.b.Track(f.table(t, 0x100, setCookie), "base"); err == nil {
		t.Fatal("Track succeeded without has_one_ref trampolines")
	}
	if f.b.Len() != 0 {
		t.Errorf("partial Track left %d bindings", f.b.Len())
	}
}

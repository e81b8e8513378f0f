package backend

import (
	"bytes"
	"context"
	"testing"

	"crushstore/internal/placement"
)

// TestMemoryBackendConformance exercises the full contract every Backend
// implementation must satisfy: whole writes, zero-fill partial writes
// into both new and existing objects, clamped partial reads, and reads
// of objects that were never written.
func TestMemoryBackendConformance(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	pool := placement.PoolName("mapoule")
	obj1 := placement.ObjectId("greeting")
	obj2 := placement.ObjectId("other")
	obj3 := placement.ObjectId("maybe")

	mustWriteObject(t, ctx, b, pool, obj1, []byte("hello world!"))
	assertReadObject(t, ctx, b, pool, obj1, []byte("hello world!"))

	mustWritePart(t, ctx, b, pool, obj2, 5, []byte("hi"))
	assertReadObject(t, ctx, b, pool, obj2, []byte("\x00\x00\x00\x00\x00hi"))

	mustWritePart(t, ctx, b, pool, obj1, 3, []byte("xxx"))
	assertReadObject(t, ctx, b, pool, obj1, []byte("helxxxworld!"))

	mustWritePart(t, ctx, b, pool, obj1, 10, []byte("!!!"))
	assertReadObject(t, ctx, b, pool, obj1, []byte("helxxxworl!!!"))

	assertReadPart(t, ctx, b, pool, obj1, 4, 3, []byte("xxw"))
	assertReadPart(t, ctx, b, pool, obj1, 4, 20, []byte("xxworl!!!"))
	assertReadPart(t, ctx, b, pool, obj1, 20, 20, []byte{})

	if _, ok, err := b.ReadObject(ctx, pool, obj3); err != nil || ok {
		t.Fatalf("ReadObject(obj3): ok=%v err=%v, want ok=false", ok, err)
	}
	if _, ok, err := b.ReadPart(ctx, pool, obj3, 3, 2); err != nil || ok {
		t.Fatalf("ReadPart(obj3): ok=%v err=%v, want ok=false", ok, err)
	}
}

func TestMemoryBackendDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	pool := placement.PoolName("pool")
	obj := placement.ObjectId("x")

	if err := b.DeleteObject(ctx, pool, obj); err != nil {
		t.Fatalf("DeleteObject on missing object: %v", err)
	}

	mustWriteObject(t, ctx, b, pool, obj, []byte("data"))
	if err := b.DeleteObject(ctx, pool, obj); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	if _, ok, _ := b.ReadObject(ctx, pool, obj); ok {
		t.Fatalf("object still present after delete")
	}
	if err := b.DeleteObject(ctx, pool, obj); err != nil {
		t.Fatalf("second DeleteObject: %v", err)
	}
}

func TestMemoryBackendPoolsAreIsolated(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	obj := placement.ObjectId("shared-name")

	mustWriteObject(t, ctx, b, "pool-a", obj, []byte("a"))
	mustWriteObject(t, ctx, b, "pool-b", obj, []byte("b"))

	assertReadObject(t, ctx, b, "pool-a", obj, []byte("a"))
	assertReadObject(t, ctx, b, "pool-b", obj, []byte("b"))
}

func mustWriteObject(t *testing.T, ctx context.Context, b *MemoryBackend, pool placement.PoolName, id placement.ObjectId, data []byte) {
	t.Helper()
	if err := b.WriteObject(ctx, pool, id, data); err != nil {
		t.Fatalf("WriteObject(%s): %v", id, err)
	}
}

func mustWritePart(t *testing.T, ctx context.Context, b *MemoryBackend, pool placement.PoolName, id placement.ObjectId, offset uint32, data []byte) {
	t.Helper()
	if err := b.WritePart(ctx, pool, id, offset, data); err != nil {
		t.Fatalf("WritePart(%s): %v", id, err)
	}
}

func assertReadObject(t *testing.T, ctx context.Context, b *MemoryBackend, pool placement.PoolName, id placement.ObjectId, want []byte) {
	t.Helper()
	got, ok, err := b.ReadObject(ctx, pool, id)
	if err != nil {
		t.Fatalf("ReadObject(%s): %v", id, err)
	}
	if !ok {
		t.Fatalf("ReadObject(%s): not found", id)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadObject(%s) = %q, want %q", id, got, want)
	}
}

func assertReadPart(t *testing.T, ctx context.Context, b *MemoryBackend, pool placement.PoolName, id placement.ObjectId, offset, length uint32, want []byte) {
	t.Helper()
	got, ok, err := b.ReadPart(ctx, pool, id, offset, length)
	if err != nil {
		t.Fatalf("ReadPart(%s): %v", id, err)
	}
	if !ok {
		t.Fatalf("ReadPart(%s): not found", id)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReadPart(%s, %d, %d) = %q, want %q", id, offset, length, got, want)
	}
}

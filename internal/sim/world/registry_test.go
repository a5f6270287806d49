package world

import (
	"sync"
	"testing"

	"voxelgrid.ai/internal/sim/voxel"
)

func TestRegistry_InsertReplacesLastWriteWins(t *testing.T) {
	r := NewRegistry()
	id := voxel.ID{X: 1}
	first := voxel.NewWithState(id, voxel.State{Data: "first"})
	second := voxel.NewWithState(id, voxel.State{Data: "second"})
	r.Insert(first)
	r.Insert(second)
	if r.Len() != 1 {
		t.Fatalf("len=%d want 1", r.Len())
	}
	got, ok := r.Lookup(id)
	if !ok || got != second {
		t.Fatalf("lookup returned %v ok=%v, want second voxel", got, ok)
	}
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := NewRegistry()
	if v, ok := r.Lookup(voxel.ID{X: 9}); ok || v != nil {
		t.Fatalf("expected absence, got %v", v)
	}
}

func TestRegistry_DeliverMissingIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Insert(voxel.New(voxel.ID{}))
	if r.Deliver(voxel.ID{X: 5}, voxel.UpdateData{Data: "x"}) {
		t.Fatalf("deliver to missing voxel reported success")
	}
	if r.Len() != 1 {
		t.Fatalf("registry changed by missing delivery")
	}
	if !r.Deliver(voxel.ID{}, voxel.UpdateData{Data: "x"}) {
		t.Fatalf("deliver to present voxel failed")
	}
	v, _ := r.Lookup(voxel.ID{})
	if v.State().Data != "x" {
		t.Fatalf("state=%q want x", v.State().Data)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Insert(voxel.New(voxel.ID{Z: 1}))
	if !r.Remove(voxel.ID{Z: 1}) {
		t.Fatalf("remove existing failed")
	}
	if r.Remove(voxel.ID{Z: 1}) {
		t.Fatalf("second remove should report absence")
	}
	if r.Len() != 0 {
		t.Fatalf("len=%d want 0", r.Len())
	}
}

func TestRegistry_EdgesSnapshotOrder(t *testing.T) {
	r := NewRegistry()
	a := voxel.New(voxel.ID{X: 1})
	b := voxel.New(voxel.ID{X: 0})
	a.AddNeighbor(voxel.ID{X: 7})
	a.AddNeighbor(voxel.ID{X: 0})
	b.AddNeighbor(voxel.ID{X: 1})
	r.Insert(a)
	r.Insert(b)

	edges := r.Edges()
	want := []Edge{
		{From: voxel.ID{X: 0}, To: voxel.ID{X: 1}},
		{From: voxel.ID{X: 1}, To: voxel.ID{X: 7}},
		{From: voxel.ID{X: 1}, To: voxel.ID{X: 0}},
	}
	if len(edges) != len(want) {
		t.Fatalf("edges=%v want %v", edges, want)
	}
	for i := range want {
		if edges[i] != want[i] {
			t.Fatalf("edges=%v want %v", edges, want)
		}
	}

	// Later mutation does not leak into an earlier snapshot.
	a.AddNeighbor(voxel.ID{Y: 3})
	if len(edges) != 3 {
		t.Fatalf("snapshot mutated")
	}
}

func TestRegistry_DigestTracksState(t *testing.T) {
	r := NewRegistry()
	r.Insert(voxel.New(voxel.ID{}))
	d0 := r.Digest()
	if d0 != r.Digest() {
		t.Fatalf("digest not stable")
	}
	r.Deliver(voxel.ID{}, voxel.UpdateData{Data: "x"})
	if r.Digest() == d0 {
		t.Fatalf("digest did not change after state change")
	}
}

func TestRegistry_ConcurrentInsertDeliverEdges(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v := voxel.New(voxel.ID{X: int32(i), Y: int32(j)})
				v.AddNeighbor(voxel.ID{X: int32(i), Y: int32(j + 1)})
				r.Insert(v)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Deliver(voxel.ID{X: int32(i), Y: int32(j)}, voxel.UpdateData{Data: "d"})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = r.Edges()
			}
		}()
	}
	wg.Wait()
	if r.Len() != 800 {
		t.Fatalf("len=%d want 800", r.Len())
	}
	if n := len(r.Edges()); n != 800 {
		t.Fatalf("edges=%d want 800", n)
	}
}

package memory

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/vietddude/refetcher/internal/core/domain"
	"github.com/vietddude/refetcher/internal/infra/storage"
)

func TestStreamPending_DescendingOrder(t *testing.T) {
	store := NewStore()
	store.AddSuspect(domain.SuspectBlock{BlockNumber: 100})
	store.AddSuspect(domain.SuspectBlock{BlockNumber: 300})
	store.AddSuspect(domain.SuspectBlock{BlockNumber: 200})
	store.AddSuspect(domain.SuspectBlock{BlockNumber: 250, Corrected: true})

	var got []int64
	err := store.StreamPending(context.Background(), func(n int64) error {
		got = append(got, n)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamPending failed: %v", err)
	}

	want := []int64{300, 200, 100}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Pending order = %v, want %v", got, want)
	}
}

func TestStreamPending_MissingTable(t *testing.T) {
	store := NewStoreWithoutControlTable()

	err := store.StreamPending(context.Background(), func(int64) error { return nil })
	if !storage.IsUndefinedTable(err) {
		t.Fatalf("Expected undefined-table error, got %v", err)
	}
}

func TestInvalidateBatch_LockOrderRecorded(t *testing.T) {
	store := NewStore()
	store.AddBlock(domain.Block{Number: 100, Hash: "0xcc", Consensus: true})
	store.AddBlock(domain.Block{Number: 101, Hash: "0xaa", Consensus: true})
	store.AddBlock(domain.Block{Number: 102, Hash: "0xbb", Consensus: true})
	store.AddSuspect(domain.SuspectBlock{BlockNumber: 100})
	store.AddSuspect(domain.SuspectBlock{BlockNumber: 101})
	store.AddSuspect(domain.SuspectBlock{BlockNumber: 102})

	corrected, err := store.InvalidateBatch(context.Background(), []int64{100, 101, 102})
	if err != nil {
		t.Fatalf("InvalidateBatch failed: %v", err)
	}
	if corrected != 3 {
		t.Errorf("Expected 3 corrected rows, got %d", corrected)
	}

	orders := store.LockOrders()
	if len(orders) != 1 {
		t.Fatalf("Expected 1 recorded lock order, got %d", len(orders))
	}
	if !sort.StringsAreSorted(orders[0]) {
		t.Errorf("Block locks not taken in hash order: %v", orders[0])
	}
}

package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/refetcher/internal/core/domain"
	"github.com/vietddude/refetcher/internal/indexing/refetch"
	"github.com/vietddude/refetcher/internal/infra/storage/memory"
)

// TestFullCorrectionPass exercises the whole workflow the way the binary
// runs it: a populated store with a mix of pending and corrected entries,
// default-shaped config, single Run to drain.
func TestFullCorrectionPass(t *testing.T) {
	store := memory.NewStore()

	const heights = 500
	for n := int64(0); n < heights; n++ {
		store.AddBlock(domain.Block{
			Number:    n,
			Hash:      fmt.Sprintf("0x%06x", n*31%heights),
			Consensus: true,
		})
		// Every third height was already corrected by a previous pass.
		store.AddSuspect(domain.SuspectBlock{BlockNumber: n, Corrected: n%3 == 0})
	}

	cfg := refetch.DefaultConfig()
	cfg.FlushInterval = 5 * time.Millisecond

	w := refetch.New(cfg, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var wantCorrected int64
	for n := int64(0); n < heights; n++ {
		if n%3 != 0 {
			wantCorrected++
		}
	}
	if w.Corrected() != wantCorrected {
		t.Errorf("Corrected() = %d, want %d", w.Corrected(), wantCorrected)
	}

	for _, s := range store.Suspects() {
		if !s.Corrected {
			t.Fatalf("Control entry %d left pending", s.BlockNumber)
		}
	}
	for n := int64(0); n < heights; n++ {
		for _, consensus := range store.ConsensusByNumber(n) {
			if n%3 == 0 && !consensus {
				t.Fatalf("Block %d was not pending and must keep consensus", n)
			}
			if n%3 != 0 && consensus {
				t.Fatalf("Block %d should have been demoted", n)
			}
		}
	}

	// A second pass over the now-clean table is a no-op.
	again := refetch.New(cfg, store, nil)
	if err := again.Run(ctx); err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if again.Corrected() != 0 {
		t.Errorf("Second run corrected %d rows, want 0", again.Corrected())
	}
}

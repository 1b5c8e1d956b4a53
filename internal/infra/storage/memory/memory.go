// Package memory provides an in-memory SuspectBlockRepository used by tests.
// Rows carry real per-row mutexes acquired in the same global order as the
// PostgreSQL repository, so ordering mistakes show up as actual deadlocks
// under concurrent batches instead of passing silently.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vietddude/refetcher/internal/core/domain"
)

type blockRow struct {
	mu    sync.Mutex
	block domain.Block
}

type suspectRow struct {
	mu      sync.Mutex
	suspect domain.SuspectBlock
}

// Store is an in-memory stand-in for the blocks and suspect_blocks tables.
type Store struct {
	mu          sync.Mutex
	tableExists bool
	blocks      []*blockRow
	suspects    []*suspectRow

	lockOrders   [][]string // hash sequences, one per invalidation
	controlFault func(blockNumbers []int64) error
}

// NewStore creates a store with an existing (empty) control table.
func NewStore() *Store {
	return &Store{tableExists: true}
}

// NewStoreWithoutControlTable creates a store whose control table was never
// created, for exercising the bootstrap guard.
func NewStoreWithoutControlTable() *Store {
	return &Store{tableExists: false}
}

// AddBlock inserts a block row.
func (s *Store) AddBlock(b domain.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, &blockRow{block: b})
}

// AddSuspect inserts a control-table row, creating the table if needed.
func (s *Store) AddSuspect(sb domain.SuspectBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableExists = true
	s.suspects = append(s.suspects, &suspectRow{suspect: sb})
}

// SetControlFault installs a hook invoked inside the invalidation
// transaction just before control rows are marked. Returning an error
// simulates a mid-transaction storage fault and rolls the batch back.
func (s *Store) SetControlFault(fn func(blockNumbers []int64) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controlFault = fn
}

// Block returns the block with the given hash, and whether it exists.
func (s *Store) Block(hash string) (domain.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.blocks {
		if r.block.Hash == hash {
			return r.block, true
		}
	}
	return domain.Block{}, false
}

// Suspects returns a snapshot of all control rows.
func (s *Store) Suspects() []domain.SuspectBlock {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SuspectBlock, 0, len(s.suspects))
	for _, r := range s.suspects {
		out = append(out, r.suspect)
	}
	return out
}

// ConsensusByNumber returns the consensus flags of all blocks at a height.
func (s *Store) ConsensusByNumber(number int64) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []bool
	for _, r := range s.blocks {
		if r.block.Number == number {
			out = append(out, r.block.Consensus)
		}
	}
	return out
}

// LockOrders returns the hash sequence in which block-row locks were taken
// for every invalidation performed so far.
func (s *Store) LockOrders() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.lockOrders))
	copy(out, s.lockOrders)
	return out
}

func undefinedTableErr() error {
	return &pgconn.PgError{Code: "42P01", Message: `relation "suspect_blocks" does not exist`}
}

// StreamPending streams pending heights, highest first.
func (s *Store) StreamPending(ctx context.Context, yield func(blockNumber int64) error) error {
	s.mu.Lock()
	if !s.tableExists {
		s.mu.Unlock()
		return undefinedTableErr()
	}
	var pending []int64
	for _, r := range s.suspects {
		if !r.suspect.Corrected {
			pending = append(pending, r.suspect.BlockNumber)
		}
	}
	s.mu.Unlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i] > pending[j] })
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(n); err != nil {
			return err
		}
	}
	return nil
}

// InvalidateBatch mirrors the PostgreSQL transaction: lock matching block
// rows by hash ascending, demote them, lock all control rows by number
// descending, mark the matching ones corrected. Block demotion is undone if
// the control step faults, like a rollback.
func (s *Store) InvalidateBatch(ctx context.Context, blockNumbers []int64) (int64, error) {
	s.mu.Lock()
	if !s.tableExists {
		s.mu.Unlock()
		return 0, undefinedTableErr()
	}
	inBatch := make(map[int64]bool, len(blockNumbers))
	for _, n := range blockNumbers {
		inBatch[n] = true
	}

	matched := make([]*blockRow, 0)
	for _, r := range s.blocks {
		if inBatch[r.block.Number] {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].block.Hash < matched[j].block.Hash })

	controls := make([]*suspectRow, len(s.suspects))
	copy(controls, s.suspects)
	sort.Slice(controls, func(i, j int) bool {
		return controls[i].suspect.BlockNumber > controls[j].suspect.BlockNumber
	})
	fault := s.controlFault
	s.mu.Unlock()

	// Acquire row locks outside the table mutex so overlapping batches
	// actually contend on them.
	order := make([]string, 0, len(matched))
	for _, r := range matched {
		r.mu.Lock()
		order = append(order, r.block.Hash)
	}

	prev := make([]bool, len(matched))
	for i, r := range matched {
		prev[i] = r.block.Consensus
		r.block.Consensus = false
	}

	for _, c := range controls {
		c.mu.Lock()
	}

	rollback := func() {
		for i, r := range matched {
			r.block.Consensus = prev[i]
		}
		for i := len(controls) - 1; i >= 0; i-- {
			controls[i].mu.Unlock()
		}
		for i := len(matched) - 1; i >= 0; i-- {
			matched[i].mu.Unlock()
		}
	}

	if fault != nil {
		if err := fault(blockNumbers); err != nil {
			rollback()
			return 0, err
		}
	}

	var corrected int64
	for _, c := range controls {
		if inBatch[c.suspect.BlockNumber] {
			c.suspect.Corrected = true
			corrected++
		}
	}

	for i := len(controls) - 1; i >= 0; i-- {
		controls[i].mu.Unlock()
	}
	for i := len(matched) - 1; i >= 0; i-- {
		matched[i].mu.Unlock()
	}

	s.mu.Lock()
	s.lockOrders = append(s.lockOrders, order)
	s.mu.Unlock()
	return corrected, nil
}

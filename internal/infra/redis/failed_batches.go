package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vietddude/refetcher/internal/core/domain"
)

const failedBatchesKey = "refetch:failed_batches"

// RecordFailedBatch persists a batch that exhausted its retry budget so
// operators can inspect recurring faults and replay the heights by hand.
func (c *Client) RecordFailedBatch(ctx context.Context, fb domain.FailedBatch) error {
	data, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("failed to marshal failed batch: %w", err)
	}

	if err := c.rdb.LPush(ctx, failedBatchesKey, data).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// FailedBatches returns all recorded failed batches, newest first.
func (c *Client) FailedBatches(ctx context.Context) ([]domain.FailedBatch, error) {
	items, err := c.rdb.LRange(ctx, failedBatchesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	out := make([]domain.FailedBatch, 0, len(items))
	for _, item := range items {
		var fb domain.FailedBatch
		if err := json.Unmarshal([]byte(item), &fb); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed batch: %w", err)
		}
		out = append(out, fb)
	}
	return out, nil
}

package rethinkdb

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/mukteshkrmishra/rethinkdb/datum"
)

// DistributionResponse approximates how keys spread across the primary
// tree: a sorted list of split keys and the shared per-bucket estimate.
// KeyCounts maps each region's leftmost key to that estimate.
type DistributionResponse struct {
	Splits        []datum.StoreKey
	KeysPerBucket int64
	KeyCounts     map[string]int64
}

// DistributionGet samples the primary keyspace. maxSplits bounds how many
// split keys come back; every bucket reports the same estimated count,
// total divided by the number of split keys (the total itself when no
// split was sampled), floored at one for any non-empty tree. The floor
// matters: a sparse tree must never report empty buckets, or a balancer
// would merge regions that still hold data.
func (s *Store) DistributionGet(ctx context.Context, maxSplits int) (*DistributionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.db.NewSnapshot()
	defer snap.Close()

	lower, upper := s.primary.Bounds()
	iter, err := snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var keys []datum.StoreKey
	for valid := iter.First(); valid; valid = iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, s.primary.StripPrefix(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	resp := &DistributionResponse{KeyCounts: map[string]int64{}}
	total := int64(len(keys))
	if total == 0 {
		return resp, nil
	}

	if maxSplits < 1 {
		maxSplits = 1
	}
	stride := len(keys) / (maxSplits + 1)
	if stride > 0 {
		for i := stride; i < len(keys) && len(resp.Splits) < maxSplits; i += stride {
			resp.Splits = append(resp.Splits, keys[i])
		}
	}

	perBucket := total
	if splits := int64(len(resp.Splits)); splits > 0 {
		perBucket = total / splits
		if perBucket < 1 {
			perBucket = 1
		}
	}
	resp.KeysPerBucket = perBucket

	left := keys[0]
	resp.KeyCounts[string(left)] = perBucket
	for _, split := range resp.Splits {
		resp.KeyCounts[string(split)] = perBucket
	}
	return resp, nil
}

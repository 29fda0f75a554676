package domain

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimingBucket maps a distribution instant to the bucket used by every read path:
// the UTC instant at millisecond precision. A shipment is written with a single
// distributedAt, so all of its members share the bucket exactly.
func TimingBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// BucketRange returns the half-open range [from, to) of instants that fall into bucket
func BucketRange(bucket time.Time) (from, to time.Time) {
	from = TimingBucket(bucket)
	return from, from.Add(time.Millisecond)
}

// BatchKey identifies one emergent batch
type BatchKey struct {
	StoreID       string
	DistributorID string
	Bucket        time.Time
}

// BatchID encodes the key as an opaque, URL-safe identifier
func (k BatchKey) BatchID() string {
	raw := k.StoreID + "\n" + k.DistributorID + "\n" + strconv.FormatInt(k.Bucket.UnixMilli(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// String is used in logs
func (k BatchKey) String() string {
	return fmt.Sprintf("%s/%s@%s", k.StoreID, k.DistributorID, k.Bucket.Format(time.RFC3339Nano))
}

// ParseBatchID reverses BatchID
func ParseBatchID(batchID string) (BatchKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(batchID)
	if err != nil {
		return BatchKey{}, NewValidationError("batchId", "malformed batch id")
	}

	parts := strings.Split(string(raw), "\n")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return BatchKey{}, NewValidationError("batchId", "malformed batch id")
	}

	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return BatchKey{}, NewValidationError("batchId", "malformed batch id")
	}

	return BatchKey{
		StoreID:       parts[0],
		DistributorID: parts[1],
		Bucket:        time.UnixMilli(millis).UTC(),
	}, nil
}

// Group is one batch worth of line items
type Group struct {
	Key   BatchKey
	Items []*DistributionLineItem
}

type groupIndexKey struct {
	store       string
	distributor string
	millis      int64
}

// GroupLineItems partitions items by batch key. Groups keep first-seen order;
// members are ordered by line number, then id.
func GroupLineItems(items []*DistributionLineItem) []Group {
	index := make(map[groupIndexKey]int)
	groups := make([]Group, 0)

	for _, item := range items {
		key := item.Key()
		ik := groupIndexKey{store: key.StoreID, distributor: key.DistributorID, millis: key.Bucket.UnixMilli()}
		i, ok := index[ik]
		if !ok {
			i = len(groups)
			index[ik] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Items = append(groups[i].Items, item)
	}

	for _, g := range groups {
		sort.SliceStable(g.Items, func(a, b int) bool {
			if g.Items[a].LineNo != g.Items[b].LineNo {
				return g.Items[a].LineNo < g.Items[b].LineNo
			}
			return g.Items[a].ID < g.Items[b].ID
		})
	}

	return groups
}

// Package poi implements the per-category POI bucket index: a bounded
// backward-upward Dijkstra from every POI populates each node's bucket of
// (poi, distance) pairs, answering k-nearest-POI queries with a forward
// search plus a bucket scan.
package poi

import "sort"

// bucketEntry is a single (poi, distance) pair held in a node's bucket.
type bucketEntry struct {
	poi      uint32
	distance uint32
}

// bucket is a sorted-prefix + unsorted-overflow POI bucket, grounded on
// EnhancedPOIIndex.h's PartialBucket: the k smallest entries seen so far are
// kept in sorted order for O(log k) worst-entry lookups, while entries that
// don't make the cut but still beat the bucket's hard capacity spill into an
// unsorted overflow that's only sorted when a query actually needs more than
// k results.
type bucket struct {
	kSmallest []bucketEntry // sorted ascending by distance, len <= maxK
	overflow  []bucketEntry // unsorted, len <= maxTotal-maxK
	maxK      int
	maxTotal  int
}

func newBucket(maxK, maxTotal int) *bucket {
	return &bucket{maxK: maxK, maxTotal: maxTotal}
}

// insertSorted inserts entry into a slice sorted ascending by distance.
func insertSorted(s []bucketEntry, entry bucketEntry) []bucketEntry {
	pos := sort.Search(len(s), func(i int) bool {
		return s[i].distance >= entry.distance
	})
	s = append(s, bucketEntry{})
	copy(s[pos+1:], s[pos:])
	s[pos] = entry
	return s
}

// insert adds entry to the bucket. If kSmallest has room, entry goes
// straight in. Otherwise, if entry beats kSmallest's current worst, that
// worst entry is displaced into the overflow and entry takes its place;
// else entry is itself an overflow candidate. Either way, the entry handed
// to the overflow is only kept if the overflow has room or it beats the
// overflow's own current worst — the bucket always ends up holding the
// max_items_per_bucket globally nearest entries seen so far, not just
// whichever arrived first.
func (b *bucket) insert(entry bucketEntry) {
	if len(b.kSmallest) < b.maxK {
		b.kSmallest = insertSorted(b.kSmallest, entry)
		return
	}

	if entry.distance < b.kSmallest[len(b.kSmallest)-1].distance {
		worst := b.kSmallest[len(b.kSmallest)-1]
		b.kSmallest = b.kSmallest[:len(b.kSmallest)-1]
		b.kSmallest = insertSorted(b.kSmallest, entry)
		entry = worst
	}

	if len(b.overflow) < b.maxTotal-b.maxK {
		b.overflow = append(b.overflow, entry)
		return
	}

	worstIdx := 0
	for i := 1; i < len(b.overflow); i++ {
		if b.overflow[i].distance > b.overflow[worstIdx].distance {
			worstIdx = i
		}
	}
	if len(b.overflow) > 0 && entry.distance < b.overflow[worstIdx].distance {
		b.overflow[worstIdx] = entry
	}
	// Otherwise the bucket is full and entry isn't better than anything
	// already held — discard.
}

// kNearest returns up to k entries ascending by distance, pulling from
// overflow (partially sorted on demand) only when kSmallest alone isn't
// enough.
func (b *bucket) kNearest(k int) []bucketEntry {
	toReturn := k
	if toReturn > len(b.kSmallest) {
		toReturn = len(b.kSmallest)
	}
	result := make([]bucketEntry, toReturn)
	copy(result, b.kSmallest[:toReturn])

	if toReturn < k && len(b.overflow) > 0 {
		needed := k - toReturn
		sort.Slice(b.overflow, func(i, j int) bool { return b.overflow[i].distance < b.overflow[j].distance })
		if needed > len(b.overflow) {
			needed = len(b.overflow)
		}
		result = append(result, b.overflow[:needed]...)
	}
	return result
}

// all returns every entry in the bucket, unordered — used by FindNearest's
// candidate scan, which re-sorts the merged candidate set itself.
func (b *bucket) all() []bucketEntry {
	out := make([]bucketEntry, 0, len(b.kSmallest)+len(b.overflow))
	out = append(out, b.kSmallest...)
	out = append(out, b.overflow...)
	return out
}

func (b *bucket) size() int { return len(b.kSmallest) + len(b.overflow) }

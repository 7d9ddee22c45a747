package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"

	"participant-gate/internal/config"
)

// BucketingManager maps string keys onto a fixed number of buckets. The
// attempt tracker uses it to pick the lock shard for a client.
type BucketingManager struct {
	buckets    int
	hasherPool sync.Pool
}

func NewBucketingManager(cfg config.BucketingConfig) *BucketingManager {
	n := cfg.AttemptShards
	if n < 1 {
		n = 1
	}
	bm := &BucketingManager{buckets: n}

	// murmur3 hashers are reused to avoid allocating one per lookup
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New32()
		},
	}
	return bm
}

func (bm *BucketingManager) Buckets() int {
	return bm.buckets
}

// Bucket returns a stable bucket in [0, Buckets()) for key.
func (bm *BucketingManager) Bucket(key string) int {
	if bm.buckets == 1 {
		return 0
	}
	h := bm.hasherPool.Get().(hash.Hash32)
	defer bm.hasherPool.Put(h)

	h.Reset()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(bm.buckets))
}

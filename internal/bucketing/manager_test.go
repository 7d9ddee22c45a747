package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"participant-gate/internal/config"
)

func TestBucketingManager_Bucket(t *testing.T) {
	t.Run("should be stable for the same key", func(t *testing.T) {
		req := require.New(t)
		bm := NewBucketingManager(config.BucketingConfig{AttemptShards: 16})

		req.Equal(bm.Bucket("203.0.113.7"), bm.Bucket("203.0.113.7"))
	})

	t.Run("should stay within range and spread keys", func(t *testing.T) {
		req := require.New(t)
		bm := NewBucketingManager(config.BucketingConfig{AttemptShards: 8})

		seen := map[int]bool{}
		for i := 0; i < 500; i++ {
			b := bm.Bucket(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
			req.GreaterOrEqual(b, 0)
			req.Less(b, 8)
			seen[b] = true
		}
		req.Greater(len(seen), 1)
	})

	t.Run("should clamp a non-positive shard count to one", func(t *testing.T) {
		req := require.New(t)
		bm := NewBucketingManager(config.BucketingConfig{AttemptShards: 0})

		req.Equal(1, bm.Buckets())
		req.Equal(0, bm.Bucket("anything"))
	})
}

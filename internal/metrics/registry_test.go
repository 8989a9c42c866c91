package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIncrementCreatesAndAdds(t *testing.T) {
	r := NewRegistry()

	r.Increment("events_total", 1)
	r.Increment("events_total", 4)

	require.Equal(t, uint64(5), r.Counter("events_total"))
}

func TestSetGaugeOverwrites(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("queue_size", 3)
	r.SetGauge("queue_size", 7.5)

	require.Equal(t, 7.5, r.Gauge("queue_size"))
}

func TestTypeMismatchIsNoOp(t *testing.T) {
	r := NewRegistry()

	r.Increment("requests_total", 2)
	r.SetGauge("requests_total", 9.9)

	require.Equal(t, uint64(2), r.Counter("requests_total"))
	require.Equal(t, uint64(1), r.Counter(mismatchMetric))

	r.SetGauge("lag", 1.0)
	r.Increment("lag", 1)

	require.Equal(t, 1.0, r.Gauge("lag"))
	require.Equal(t, uint64(2), r.Counter(mismatchMetric))
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.Increment("a", 1)

	snap := r.Snapshot()
	snap["a"] = Value{Kind: KindCounter, Counter: 100}
	delete(snap, "a")

	require.Equal(t, uint64(1), r.Counter("a"))
}

func TestLabeledNamesAreDistinct(t *testing.T) {
	r := NewRegistry()

	r.Increment(APIRequestMetric("get_portfolio", 200), 1)
	r.Increment(APIRequestMetric("get_portfolio", 500), 1)

	require.Equal(t, uint64(1), r.Counter("api_requests_total,endpoint=get_portfolio,status=200"))
	require.Equal(t, uint64(1), r.Counter("api_requests_total,endpoint=get_portfolio,status=500"))
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				r.Increment("hot", 1)
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(8000), r.Counter("hot"))
}

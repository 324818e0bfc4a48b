package extsort

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFibonacciDistributionCoversAllRealRuns(t *testing.T) {
	dist := FibonacciDistribution(3, 10)
	require.Len(t, dist.RealRuns, 3)
	total := 0
	for _, n := range dist.RealRuns {
		total += n
	}
	require.Equal(t, 10, total)
	for i, n := range dist.RealRuns {
		require.GreaterOrEqual(t, n+dist.DummyRuns[i], n)
	}
}

func TestFibonacciDistributionZeroRunsIsAllDummy(t *testing.T) {
	dist := FibonacciDistribution(3, 0)
	for _, n := range dist.RealRuns {
		require.Equal(t, 0, n)
	}
	for _, d := range dist.DummyRuns {
		require.Equal(t, 1, d)
	}
}

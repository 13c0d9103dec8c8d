package samplesort

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmarkovic/seqsort/internal/fabric"
)

// forEachRank runs fn concurrently on every rank of an in-memory mesh.
func forEachRank(t *testing.T, size int, fn func(c Cluster) error) []error {
	t.Helper()

	transports := fabric.NewMesh(size)
	t.Cleanup(func() {
		for _, tr := range transports {
			tr.Close()
		}
	})

	errs := make([]error, size)
	var wg sync.WaitGroup
	for rank := range size {
		wg.Go(func() {
			errs[rank] = fn(NewCluster(fabric.NewGroup(transports[rank]), nil))
		})
	}
	wg.Wait()
	return errs
}

// sortDistributed runs the full pipeline over an in-memory mesh and returns
// the coordinator's output.
func sortDistributed(t *testing.T, size int, input []string) []string {
	t.Helper()

	var output []string
	job := Job{
		ReadInput:   func() ([]string, error) { return slices.Clone(input), nil },
		WriteOutput: func(records []string) error { output = records; return nil },
	}

	errs := forEachRank(t, size, func(c Cluster) error {
		return Run(context.Background(), c, job)
	})
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	return output
}

func TestRun_FourRecordsTwoWorkers(t *testing.T) {
	output := sortDistributed(t, 2, []string{"GGTT", "AACC", "TTAA", "CCGG"})
	require.Equal(t, []string{"AACC", "CCGG", "GGTT", "TTAA"}, output)
}

func TestRun_IdenticalRecords(t *testing.T) {
	input := slices.Repeat([]string{"AAAA"}, 7)

	// All pivots coincide with "AAAA" and most buckets end up empty.
	output := sortDistributed(t, 3, input)
	require.Equal(t, input, output)
}

func TestRun_EmptyInput(t *testing.T) {
	output := sortDistributed(t, 3, nil)
	require.Empty(t, output)
}

func TestRun_MoreWorkersThanRecords(t *testing.T) {
	output := sortDistributed(t, 5, []string{"TT", "AA"})
	require.Equal(t, []string{"AA", "TT"}, output)
}

func TestRun_SingleWorkerBaseline(t *testing.T) {
	input := []string{"GGTT", "AACC", "TTAA", "CCGG", "AACC"}

	output := sortDistributed(t, 1, input)

	want := slices.Clone(input)
	slices.Sort(want)
	require.Equal(t, want, output)
}

func TestRun_Idempotent(t *testing.T) {
	input := []string{"AACC", "CCGG", "GGTT", "TTAA"}

	once := sortDistributed(t, 2, input)
	require.Equal(t, input, once)

	twice := sortDistributed(t, 2, once)
	require.Equal(t, once, twice)
}

func TestRun_MatchesSequentialSort(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	input := randomSequences(rng, 2000, 10, 100)

	want := slices.Clone(input)
	slices.Sort(want)

	for _, workers := range []int{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("P=%d", workers), func(t *testing.T) {
			output := sortDistributed(t, workers, input)
			require.Len(t, output, len(input), "records lost or duplicated")
			require.Equal(t, want, output)
		})
	}
}

func TestRun_SkewedInput(t *testing.T) {
	// One dominant value forces nearly the whole dataset through a single
	// destination; the shuffle must not deadlock and nothing may be lost.
	input := slices.Repeat([]string{"AAAA"}, 1000)
	rng := rand.New(rand.NewPCG(7, 0))
	input = append(input, randomSequences(rng, 20, 10, 20)...)
	rng.Shuffle(len(input), func(i, j int) { input[i], input[j] = input[j], input[i] })

	want := slices.Clone(input)
	slices.Sort(want)

	output := sortDistributed(t, 4, input)
	require.Equal(t, want, output)
}

func TestRun_CoordinatorReadFailureAborts(t *testing.T) {
	readErr := errors.New("disk gone")
	job := Job{
		ReadInput:   func() ([]string, error) { return nil, readErr },
		WriteOutput: func([]string) error { t.Error("output written on failed run"); return nil },
	}

	// Every rank must return instead of blocking on the coordinator.
	errs := forEachRank(t, 3, func(c Cluster) error {
		return Run(context.Background(), c, job)
	})

	require.ErrorIs(t, errs[0], readErr)
	for rank := 1; rank < 3; rank++ {
		require.ErrorIs(t, errs[rank], ErrAborted, "rank %d", rank)
	}
}

func TestDistribute_BlockBoundaries(t *testing.T) {
	input := []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6"}

	var mu sync.Mutex
	partitions := make(map[int][]string)

	errs := forEachRank(t, 3, func(c Cluster) error {
		var all []string
		if c.IsCoordinator() {
			all = input
		}
		local, err := Distribute(context.Background(), c, all)
		if err != nil {
			return err
		}
		mu.Lock()
		partitions[c.Rank] = local
		mu.Unlock()
		return nil
	})
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}

	// Contiguous blocks in rank order, sizes differing by at most one.
	require.Equal(t, []string{"r0", "r1", "r2"}, partitions[0])
	require.Equal(t, []string{"r3", "r4"}, partitions[1])
	require.Equal(t, []string{"r5", "r6"}, partitions[2])
}

func TestExchange_OneRankReceivesFromAll(t *testing.T) {
	// Adversarial skew: every rank buckets everything for rank 0, which
	// itself has nothing to send.
	size := 4
	var mu sync.Mutex
	results := make(map[int][]string)

	errs := forEachRank(t, size, func(c Cluster) error {
		buckets := make([][]string, size)
		for i := range 50 {
			buckets[0] = append(buckets[0], fmt.Sprintf("%d-%03d", c.Rank, i))
		}

		local, err := Exchange(context.Background(), c, buckets)
		if err != nil {
			return err
		}
		mu.Lock()
		results[c.Rank] = local
		mu.Unlock()
		return nil
	})
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}

	require.Len(t, results[0], size*50)
	for rank := 1; rank < size; rank++ {
		require.Empty(t, results[rank])
	}

	// Count conservation across the shuffle: every sent record arrived.
	for rank := range size {
		for i := range 50 {
			require.Contains(t, results[0], fmt.Sprintf("%d-%03d", rank, i))
		}
	}
}

func TestRun_LongRecords(t *testing.T) {
	input := []string{
		strings.Repeat("T", 100),
		strings.Repeat("A", 100),
		strings.Repeat("G", 100),
		strings.Repeat("C", 100),
	}

	output := sortDistributed(t, 2, input)

	want := slices.Clone(input)
	slices.Sort(want)
	require.Equal(t, want, output)
}

func randomSequences(rng *rand.Rand, n, minLen, maxLen int) []string {
	const alphabet = "ACGT"

	sequences := make([]string, n)
	var b strings.Builder
	for i := range sequences {
		b.Reset()
		length := minLen + rng.IntN(maxLen-minLen+1)
		for range length {
			b.WriteByte(alphabet[rng.IntN(len(alphabet))])
		}
		sequences[i] = b.String()
	}
	return sequences
}

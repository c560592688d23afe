package bloom_test

import (
	"fmt"
	"testing"

	"github.com/lsmkit/stratum/internal/bloom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_NoFalseNegatives(t *testing.T) {
	f := bloom.New(1000, 0.01)

	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key-%d", i))
		f.Add(keys[i])
	}

	for _, k := range keys {
		assert.True(t, f.MayContain(k), "inserted key %q must never be reported absent", k)
	}
}

func TestFilter_EmpiricalFalsePositiveRateWithinBound(t *testing.T) {
	const n = 2000
	const targetFPR = 0.01

	f := bloom.New(n, targetFPR)
	for i := range n {
		f.Add([]byte(fmt.Sprintf("present-%d", i)))
	}

	falsePositives := 0
	trials := 5000
	for i := range trials {
		key := []byte(fmt.Sprintf("absent-%d", i))
		if f.MayContain(key) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	// Generous margin: the formulas target targetFPR asymptotically, not
	// exactly, so assert an order-of-magnitude bound rather than equality.
	assert.Less(t, rate, targetFPR*5, "empirical false-positive rate %f far exceeds target %f", rate, targetFPR)
}

func TestFilter_KClampedToRange(t *testing.T) {
	f := bloom.New(1, 1e-20)
	assert.LessOrEqual(t, f.K(), uint8(30))
	assert.GreaterOrEqual(t, f.K(), uint8(1))
}

func TestFilter_EncodeDecodeRoundTrip(t *testing.T) {
	f := bloom.New(100, 0.05)
	for i := range 100 {
		f.Add([]byte(fmt.Sprintf("key-%d", i)))
	}

	encoded := f.Encode()
	decoded, err := bloom.Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, f.M(), decoded.M())
	assert.Equal(t, f.K(), decoded.K())
	for i := range 100 {
		key := []byte(fmt.Sprintf("key-%d", i))
		assert.True(t, decoded.MayContain(key))
	}
}

func TestDecode_RejectsTruncatedData(t *testing.T) {
	_, err := bloom.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

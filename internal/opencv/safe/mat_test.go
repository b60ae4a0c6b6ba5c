package safe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDimensions(t *testing.T) {
	assert.NoError(t, ValidateDimensions(1, 1, "probe"))
	assert.NoError(t, ValidateDimensions(MaxDimension, MaxDimension, "probe"))
	assert.Error(t, ValidateDimensions(0, 10, "probe"))
	assert.Error(t, ValidateDimensions(10, -1, "probe"))
	assert.Error(t, ValidateDimensions(MaxDimension+1, 10, "probe"))
}

func TestGrayMatLifecycle(t *testing.T) {
	pix := make([]byte, 6*4)
	for i := range pix {
		pix[i] = byte(i)
	}

	before := MatStats()
	m, err := NewGrayMatFromBytes(6, 4, pix, "test")
	require.NoError(t, err)
	assert.Equal(t, before.CurrentlyActive+1, MatStats().CurrentlyActive)
	assert.Equal(t, before.TotalAllocated+24, MatStats().TotalAllocated)
	assert.Contains(t, LiveTags(0), "test")
	require.NoError(t, ValidateMatForOperation(m, "test"))
	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 6, m.Cols())
	raw := m.GetMat()
	assert.Equal(t, uint8(7), raw.GetUCharAt(1, 1))

	m.Close()
	m.Close()
	after := MatStats()
	assert.Equal(t, before.CurrentlyActive, after.CurrentlyActive)
	assert.Equal(t, before.TotalDeallocated+24, after.TotalDeallocated)
	assert.False(t, m.IsValid())
	assert.True(t, m.Empty())
	assert.Zero(t, m.Rows())
	assert.Error(t, ValidateMatForOperation(m, "test"))
}

func TestGrayMatRejectsShortBuffer(t *testing.T) {
	_, err := NewGrayMatFromBytes(6, 4, make([]byte, 23), "test")
	assert.Error(t, err)

	_, err = NewGrayMatFromBytes(0, 4, nil, "test")
	assert.Error(t, err)
	assert.Error(t, ValidateMatForOperation(nil, "test"))
}

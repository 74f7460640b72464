package helpers

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	err := FoldErrors([]error{errors.New("one"), nil, errors.New("two")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "one")
	assert.Contains(t, err.Error(), "two")
}

func TestDurationDefaults(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 30*time.Second, IntSecondDefault(0, 30*time.Second))
	assert.Equal(t, 7*time.Second, IntSecondDefault(7, 30*time.Second))
	assert.Equal(t, 2*time.Second, IntMillisecondDefault(0, 2*time.Second))
	assert.Equal(t, 150*time.Millisecond, IntMillisecondDefault(150, 2*time.Second))
	assert.Equal(t, 100, IntDefault(0, 100))
	assert.Equal(t, 5, IntDefault(5, 100))
}

package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerwatch/ppscan/pkg/log"
)

func TestNewCircularBuffer(t *testing.T) {
	t.Parallel()

	cb := log.NewCircularBuffer(10)
	assert.Equal(t, 10, cb.Capacity())
	assert.Equal(t, 0, cb.Size())
	assert.False(t, cb.IsFull())

	// Invalid capacities fall back to the default.
	assert.Equal(t, 100, log.NewCircularBuffer(0).Capacity())
	assert.Equal(t, 100, log.NewCircularBuffer(-5).Capacity())
}

func TestCircularBufferWrite(t *testing.T) {
	t.Parallel()

	cb := log.NewCircularBuffer(3)

	n, err := cb.Write([]byte("entry1"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, 1, cb.Size())

	// Empty writes are dropped.
	n, err = cb.Write([]byte{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, cb.Size())

	_, err = cb.Write([]byte("entry2"))
	require.NoError(t, err)
	_, err = cb.Write([]byte("entry3"))
	require.NoError(t, err)

	assert.True(t, cb.IsFull())

	// Writing past capacity overwrites the oldest entry.
	_, err = cb.Write([]byte("entry4"))
	require.NoError(t, err)
	assert.Equal(t, 3, cb.Size())
}

func TestCircularBufferEntries(t *testing.T) {
	t.Parallel()

	cb := log.NewCircularBuffer(3)
	assert.Nil(t, cb.Entries())

	for _, entry := range []string{"first", "second", "third", "fourth", "fifth"} {
		_, err := cb.Write([]byte(entry))
		require.NoError(t, err)
	}

	entries := cb.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "third", string(entries[0]))
	assert.Equal(t, "fourth", string(entries[1]))
	assert.Equal(t, "fifth", string(entries[2]))

	// Returned entries are copies.
	entries[0][0] = 'X'
	assert.Equal(t, "third", string(cb.Entries()[0]))
}

func TestCircularBufferWriteTo(t *testing.T) {
	t.Parallel()

	cb := log.NewCircularBuffer(3)

	var buf bytes.Buffer

	n, err := cb.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	for _, line := range []string{"line1\n", "line2\n", "line3\n"} {
		_, err := cb.Write([]byte(line))
		require.NoError(t, err)
	}

	n, err = cb.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(18), n)
	assert.Equal(t, "line1\nline2\nline3\n", buf.String())
}

func TestCircularBufferConcurrentAccess(t *testing.T) {
	t.Parallel()

	cb := log.NewCircularBuffer(100)

	done := make(chan bool, 15)

	for range 10 {
		go func() {
			for range 50 {
				_, err := cb.Write([]byte(strings.Repeat("x", 10)))
				assert.NoError(t, err)
			}
			done <- true
		}()
	}

	for range 5 {
		go func() {
			for range 20 {
				cb.Entries()
				cb.Size()
				cb.IsFull()
			}
			done <- true
		}()
	}

	for range 15 {
		<-done
	}

	assert.True(t, cb.IsFull())
	assert.Equal(t, 100, cb.Size())
}

package multi

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/errtel/pkg/errtel"
)

type recordingSink struct {
	mu       sync.Mutex
	records  []errtel.ErrorRecord
	writeErr error
	closed   bool
}

func (s *recordingSink) Write(ctx context.Context, rec errtel.ErrorRecord) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Flush(ctx context.Context) error { return nil }

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestMultiSink_WritesToAllSinks(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := NewMultiSink(a, nil, b)

	require.NoError(t, sink.Write(context.Background(), errtel.ErrorRecord{ID: "r1"}))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestMultiSink_ContinuesAfterFailure(t *testing.T) {
	errBoom := errors.New("boom")
	failing := &recordingSink{writeErr: errBoom}
	ok := &recordingSink{}
	sink := NewMultiSink(failing, ok)

	err := sink.Write(context.Background(), errtel.ErrorRecord{ID: "r1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "sink 0")
	assert.Equal(t, 1, ok.count(), "second sink must still receive the record")
}

func TestMultiSink_CloseClosesAll(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	require.NoError(t, NewMultiSink(a, b).Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

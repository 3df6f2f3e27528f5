package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesAccount(t *testing.T) {
	l := NewLocalLocker()
	account := common.HexToAddress("0xbeef")

	release, err := l.Acquire(context.Background(), account)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, account)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other accounts are independent
	other, err := l.Acquire(context.Background(), common.HexToAddress("0xcafe"))
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := l.Acquire(context.Background(), account)
	require.NoError(t, err)
	again()
}

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (r recordingLocker) Acquire(ctx context.Context, account common.Address) (func(), error) {
	if r.err != nil {
		return nil, r.err
	}
	*r.log = append(*r.log, "acquire "+r.name)
	return func() { *r.log = append(*r.log, "release "+r.name) }, nil
}

func TestStackedLocker(t *testing.T) {
	t.Run("releases in reverse", func(t *testing.T) {
		var log []string
		s := StackedLocker{recordingLocker{name: "local", log: &log}, recordingLocker{name: "redis", log: &log}}

		release, err := s.Acquire(context.Background(), common.Address{})
		require.NoError(t, err)
		release()

		assert.Equal(t, []string{"acquire local", "acquire redis", "release redis", "release local"}, log)
	})

	t.Run("failure releases what was taken", func(t *testing.T) {
		var log []string
		busy := errors.New("busy")
		s := StackedLocker{recordingLocker{name: "local", log: &log}, recordingLocker{name: "redis", log: &log, err: busy}}

		_, err := s.Acquire(context.Background(), common.Address{})
		assert.ErrorIs(t, err, busy)
		assert.Equal(t, []string{"acquire local", "release local"}, log)
	})
}

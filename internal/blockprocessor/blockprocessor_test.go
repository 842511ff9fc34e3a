package blockprocessor

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gonano/nanod/internal/ledger"
	"github.com/gonano/nanod/internal/nanotype"
	"github.com/gonano/nanod/internal/unchecked"
)

func newSignedOpen(t *testing.T, balance uint64) (*nanotype.Block, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var acc nanotype.Account
	copy(acc[:], pub)
	b := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, acc, acc,
		nanotype.AmountFromUint64(balance), nanotype.ZeroHash, [64]byte{}, 0)
	h := b.Hash()
	sig := ed25519.Sign(priv, h[:])
	copy(b.Signature[:], sig)
	return b, priv
}

func TestAddBlockingProcessesOpen(t *testing.T) {
	store := ledger.NewMemStore()
	p := New(store, unchecked.New(1024), nil, nil)
	p.Start()
	defer p.Stop()

	block, _ := newSignedOpen(t, 1000)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	saved, status, err := p.AddBlocking(ctx, block, nanotype.SourceLocal)
	require.NoError(t, err)
	require.Equal(t, nanotype.Progress, status)
	require.NotNil(t, saved)
}

func TestAddRejectsFailingWork(t *testing.T) {
	store := ledger.NewMemStore()
	p := New(store, unchecked.New(1024), nil, rejectAllWork{})
	p.Start()
	defer p.Stop()

	block, _ := newSignedOpen(t, 1000)
	require.False(t, p.Add(block, nanotype.SourceLive, 1))
}

type rejectAllWork struct{}

func (rejectAllWork) Validate(*nanotype.Block) bool { return false }

func TestGapPreviousStagesInUnchecked(t *testing.T) {
	store := ledger.NewMemStore()
	unc := unchecked.New(1024)
	p := New(store, unc, nil, nil)
	p.Start()
	defer p.Stop()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var acc nanotype.Account
	copy(acc[:], pub)
	orphan := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.Hash{9}, acc, acc,
		nanotype.AmountFromUint64(1), nanotype.ZeroHash, [64]byte{}, 0)
	h := orphan.Hash()
	copy(orphan.Signature[:], ed25519.Sign(priv, h[:]))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, status, err := p.AddBlocking(ctx, orphan, nanotype.SourceLive)
	require.NoError(t, err)
	require.Equal(t, nanotype.GapPrevious, status)

	require.Eventually(t, func() bool {
		return len(unc.Peek(nanotype.Hash{9})) == 1
	}, time.Second, 10*time.Millisecond)
}

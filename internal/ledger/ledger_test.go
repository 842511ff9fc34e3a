package ledger

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonano/nanod/internal/nanotype"
)

type testAccount struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newTestAccount(t *testing.T) testAccount {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return testAccount{pub: pub, priv: priv}
}

func (a testAccount) account() nanotype.Account {
	var acc nanotype.Account
	copy(acc[:], a.pub)
	return acc
}

func signBlock(a testAccount, b *nanotype.Block) {
	h := b.Hash()
	sig := ed25519.Sign(a.priv, h[:])
	copy(b.Signature[:], sig)
}

func TestProcessOpenBlock(t *testing.T) {
	s := NewMemStore()
	alice := newTestAccount(t)

	open := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, alice.account(), alice.account(),
		nanotype.AmountFromUint64(1000), nanotype.ZeroHash, [64]byte{}, 0)
	signBlock(alice, open)

	w, err := s.BeginWrite("test")
	require.NoError(t, err)
	saved, status := s.Process(w, open)
	require.Equal(t, nanotype.Progress, status)
	require.NotNil(t, saved)
	require.Equal(t, uint64(1), saved.Sideband.Height)
	require.NoError(t, w.Commit())

	require.Equal(t, nanotype.AmountFromUint64(1000).Uint64(), s.Weight(alice.account()).Uint64())

	r := s.BeginRead()
	defer r.Discard()
	info, ok := s.GetAccountInfo(r, alice.account())
	require.True(t, ok)
	require.Equal(t, open.Hash(), info.Head)
}

func TestProcessSendAndReceive(t *testing.T) {
	s := NewMemStore()
	alice := newTestAccount(t)
	bob := newTestAccount(t)

	open := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, alice.account(), alice.account(),
		nanotype.AmountFromUint64(1000), nanotype.ZeroHash, [64]byte{}, 0)
	signBlock(alice, open)

	w, err := s.BeginWrite("test")
	require.NoError(t, err)
	_, status := s.Process(w, open)
	require.Equal(t, nanotype.Progress, status)
	require.NoError(t, w.Commit())

	send := nanotype.NewBlock(nanotype.BlockTypeState, open.Hash(), alice.account(), alice.account(),
		nanotype.AmountFromUint64(400), bob.account().AsHash(), [64]byte{}, 0)
	signBlock(alice, send)

	w, err = s.BeginWrite("test")
	require.NoError(t, err)
	savedSend, status := s.Process(w, send)
	require.Equal(t, nanotype.Progress, status)
	require.True(t, savedSend.Sideband.Details.IsSend)
	require.NoError(t, w.Commit())

	receive := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, bob.account(), bob.account(),
		nanotype.AmountFromUint64(600), send.Hash(), [64]byte{}, 0)
	signBlock(bob, receive)

	w, err = s.BeginWrite("test")
	require.NoError(t, err)
	savedRecv, status := s.Process(w, receive)
	require.Equal(t, nanotype.Progress, status)
	require.True(t, savedRecv.Sideband.Details.IsReceive)
	require.NoError(t, w.Commit())

	require.Equal(t, uint64(400), s.Weight(alice.account()).Uint64())
	require.Equal(t, uint64(600), s.Weight(bob.account()).Uint64())
}

func TestProcessOldAndFork(t *testing.T) {
	s := NewMemStore()
	alice := newTestAccount(t)

	open := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, alice.account(), alice.account(),
		nanotype.AmountFromUint64(1000), nanotype.ZeroHash, [64]byte{}, 0)
	signBlock(alice, open)

	w, _ := s.BeginWrite("test")
	_, status := s.Process(w, open)
	require.Equal(t, nanotype.Progress, status)
	require.NoError(t, w.Commit())

	w, _ = s.BeginWrite("test")
	_, status = s.Process(w, open)
	require.Equal(t, nanotype.Old, status)
	w.Discard()

	fork := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, alice.account(), alice.account(),
		nanotype.AmountFromUint64(999), nanotype.ZeroHash, [64]byte{}, 0)
	signBlock(alice, fork)

	w, _ = s.BeginWrite("test")
	_, status = s.Process(w, fork)
	require.Equal(t, nanotype.Fork, status)
	w.Discard()
}

func TestProcessGapPrevious(t *testing.T) {
	s := NewMemStore()
	alice := newTestAccount(t)

	notOpen := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.Hash{9}, alice.account(), alice.account(),
		nanotype.AmountFromUint64(1000), nanotype.ZeroHash, [64]byte{}, 0)
	signBlock(alice, notOpen)

	w, _ := s.BeginWrite("test")
	_, status := s.Process(w, notOpen)
	require.Equal(t, nanotype.GapPrevious, status)
	w.Discard()
}

func TestRollbackUndoesEffects(t *testing.T) {
	s := NewMemStore()
	alice := newTestAccount(t)

	open := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.ZeroHash, alice.account(), alice.account(),
		nanotype.AmountFromUint64(1000), nanotype.ZeroHash, [64]byte{}, 0)
	signBlock(alice, open)
	w, _ := s.BeginWrite("test")
	s.Process(w, open)
	require.NoError(t, w.Commit())

	change := nanotype.NewBlock(nanotype.BlockTypeState, open.Hash(), alice.account(), nanotype.Account{7},
		nanotype.AmountFromUint64(1000), nanotype.ZeroHash, [64]byte{}, 0)
	signBlock(alice, change)
	w, _ = s.BeginWrite("test")
	_, status := s.Process(w, change)
	require.Equal(t, nanotype.Progress, status)
	require.NoError(t, w.Commit())

	require.Equal(t, uint64(0), s.Weight(alice.account()).Uint64())
	require.Equal(t, uint64(1000), s.Weight(nanotype.Account{7}).Uint64())

	w, _ = s.BeginWrite("test")
	removed, err := s.Rollback(w, change.Hash())
	require.NoError(t, err)
	require.Len(t, removed, 1)
	require.NoError(t, w.Commit())

	require.Equal(t, uint64(1000), s.Weight(alice.account()).Uint64())
	require.Equal(t, uint64(0), s.Weight(nanotype.Account{7}).Uint64())

	r := s.BeginRead()
	defer r.Discard()
	info, ok := s.GetAccountInfo(r, alice.account())
	require.True(t, ok)
	require.Equal(t, open.Hash(), info.Head)
}

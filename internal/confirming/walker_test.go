package confirming

import (
	"crypto/ed25519"
	"testing"

	"github.com/gonano/nanod/internal/ledger"
	"github.com/gonano/nanod/internal/nanotype"
	"github.com/stretchr/testify/require"
)

// testAccount and signBlock mirror the pattern established in
// internal/ledger/ledger_test.go: real ed25519 keypairs so blocks pass
// verifySignature, since the walker runs against a live *ledger.Store.
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

// buildChain builds and processes a simple linear account chain: an open
// block (first, no previous) followed by n-1 successors, each a plain
// state "change"-shaped block (balance unchanged) so no pending entries
// are involved. Returns the inserted SavedBlocks.
func buildChain(t *testing.T, store *ledger.Store, a testAccount, n int) []*nanotype.SavedBlock {
	t.Helper()
	account := a.account()
	var blocks []*nanotype.SavedBlock
	prev := nanotype.Hash{}
	for i := 0; i < n; i++ {
		b := nanotype.NewBlock(nanotype.BlockTypeState, prev, account, account,
			nanotype.AmountFromUint64(100), nanotype.Link{}, [64]byte{}, 0)
		signBlock(a, b)
		w, err := store.BeginWrite("test")
		require.NoError(t, err)
		saved, status := store.Process(w, b)
		require.Equal(t, nanotype.Progress, status, "block %d", i)
		require.NoError(t, w.Commit())
		blocks = append(blocks, saved)
		prev = b.Hash()
	}
	return blocks
}

func TestWalkerCementsSingleAccountChain(t *testing.T) {
	store := ledger.NewMemStore()
	g := newTestAccount(t)
	blocks := buildChain(t, store, g, 5)

	w, err := store.BeginWrite("ConfirmingSet")
	require.NoError(t, err)
	var sections []Section
	wk := NewWalker(store, w, func(s Section) error {
		sections = append(sections, s)
		return store.WriteConfirmationHeight(w, ledger.ConfirmedSection{Account: s.Account, Height: s.TopHeight, Frontier: s.TopHash})
	})
	require.NoError(t, wk.Run(blocks[len(blocks)-1]))
	require.NoError(t, w.Commit())

	require.Len(t, sections, 1)
	require.Equal(t, uint64(1), sections[0].BottomHeight)
	require.Equal(t, uint64(5), sections[0].TopHeight)
	require.Equal(t, blocks[len(blocks)-1].Hash(), sections[0].TopHash)

	rt := store.BeginRead()
	defer rt.Discard()
	ch, ok := store.GetConfirmationHeight(rt, g.account())
	require.True(t, ok)
	require.Equal(t, uint64(5), ch.Height)
}

func TestWalkerIsNoOpWhenAlreadyCemented(t *testing.T) {
	store := ledger.NewMemStore()
	g := newTestAccount(t)
	blocks := buildChain(t, store, g, 3)

	w, err := store.BeginWrite("ConfirmingSet")
	require.NoError(t, err)
	require.NoError(t, store.WriteConfirmationHeight(w, ledger.ConfirmedSection{Account: g.account(), Height: 3, Frontier: blocks[2].Hash()}))
	require.NoError(t, w.Commit())

	w2, err := store.BeginWrite("ConfirmingSet")
	require.NoError(t, err)
	var sections []Section
	wk := NewWalker(store, w2, func(s Section) error {
		sections = append(sections, s)
		return nil
	})
	require.NoError(t, wk.Run(blocks[2]))
	require.NoError(t, w2.Commit())
	require.Empty(t, sections)
}

// TestWalkerCrossesAccountsViaReceive builds G open -> send(G->X), X opens
// by receiving it, confirming X's open must also cement G's send.
func TestWalkerCrossesAccountsViaReceive(t *testing.T) {
	store := ledger.NewMemStore()
	g, x := newTestAccount(t), newTestAccount(t)

	w, err := store.BeginWrite("t")
	require.NoError(t, err)
	gOpen := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.Hash{}, g.account(), g.account(),
		nanotype.AmountFromUint64(1000), nanotype.Link{}, [64]byte{}, 0)
	signBlock(g, gOpen)
	_, status := store.Process(w, gOpen)
	require.Equal(t, nanotype.Progress, status)
	require.NoError(t, w.Commit())

	w, err = store.BeginWrite("t")
	require.NoError(t, err)
	send := nanotype.NewBlock(nanotype.BlockTypeState, gOpen.Hash(), g.account(), g.account(),
		nanotype.AmountFromUint64(500), x.account().AsHash(), [64]byte{}, 0)
	signBlock(g, send)
	savedSend, status := store.Process(w, send)
	require.Equal(t, nanotype.Progress, status)
	require.NoError(t, w.Commit())

	w, err = store.BeginWrite("t")
	require.NoError(t, err)
	open := nanotype.NewBlock(nanotype.BlockTypeState, nanotype.Hash{}, x.account(), x.account(),
		nanotype.AmountFromUint64(500), savedSend.Hash(), [64]byte{}, 0)
	signBlock(x, open)
	savedOpen, status := store.Process(w, open)
	require.Equal(t, nanotype.Progress, status, "open should receive the pending send")
	require.NoError(t, w.Commit())

	w, err = store.BeginWrite("ConfirmingSet")
	require.NoError(t, err)
	var sections []Section
	wk := NewWalker(store, w, func(s Section) error {
		sections = append(sections, s)
		return store.WriteConfirmationHeight(w, ledger.ConfirmedSection{Account: s.Account, Height: s.TopHeight, Frontier: s.TopHash})
	})
	require.NoError(t, wk.Run(savedOpen))
	require.NoError(t, w.Commit())

	require.Len(t, sections, 2)
	byAccount := map[nanotype.Account]Section{}
	for _, s := range sections {
		byAccount[s.Account] = s
	}
	gSec, ok := byAccount[g.account()]
	require.True(t, ok)
	require.Equal(t, savedSend.Hash(), gSec.TopHash)
	xSec, ok := byAccount[x.account()]
	require.True(t, ok)
	require.Equal(t, savedOpen.Hash(), xSec.TopHash)
}

package service

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/Sleepy9988/decent-identity/core"
	"github.com/Sleepy9988/decent-identity/internal/eth"
)

// wallet is a test signer with a did:ethr identity.
type wallet struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (w *wallet) did() string {
	return "did:ethr:" + w.addr.Hex()
}

// keySignature is the wallet's personal signature over the key message, as a
// browser wallet would produce it (V as 27/28).
func (w *wallet) keySignature(t *testing.T) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(eth.KeyMessage)), w.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

// stubVerifier trusts the issuer field of whatever it is given. err, when
// set, fails every verification.
type stubVerifier struct {
	err error
}

func (v *stubVerifier) VerifyPresentation(_ context.Context, presentation map[string]any, _ string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	issuer, _ := presentation["issuer"].(string)
	return issuer, nil
}

func (v *stubVerifier) VerifyCredential(_ context.Context, credential map[string]any) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	issuer, _ := credential["issuer"].(string)
	return issuer, nil
}

// recordingNotifier captures published notifications per DID.
type recordingNotifier struct {
	mu     sync.Mutex
	events map[string][]core.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(map[string][]core.Notification)}
}

func (n *recordingNotifier) Publish(_ context.Context, did string, notif core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events[did] = append(n.events[did], notif)
	return nil
}

func (n *recordingNotifier) Subscribe(ctx context.Context, did string) (<-chan core.Notification, error) {
	ch := make(chan core.Notification)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (n *recordingNotifier) Clear(_ context.Context, did string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.events, did)
	return nil
}

func (n *recordingNotifier) eventsFor(did string) []core.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Notification(nil), n.events[did]...)
}

// recordingPublisher captures logout events.
type recordingPublisher struct {
	mu      sync.Mutex
	logouts []string
}

func (p *recordingPublisher) PublishLogout(_ context.Context, did, tokenID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logouts = append(p.logouts, did+"/"+tokenID)
	return nil
}

// presentationBy builds the minimal presentation shape the stub verifier and
// claim parsers understand.
func presentationBy(issuerDID string, subject map[string]any) map[string]any {
	return map[string]any{
		"issuer": issuerDID,
		"verifiableCredential": []any{
			map[string]any{
				"issuer":            issuerDID,
				"credentialSubject": subject,
			},
		},
	}
}

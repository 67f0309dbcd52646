package eth

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func signPersonal(t *testing.T, msg string) (string, string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	require.NoError(t, err)

	return hexutil.Encode(sig), crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func TestRecoverSigner(t *testing.T) {
	sigHex, addr := signPersonal(t, KeyMessage)

	recovered, err := RecoverSigner(KeyMessage, sigHex)
	require.NoError(t, err)
	require.Equal(t, addr, recovered.Hex())
}

func TestRecoverSignerWalletV(t *testing.T) {
	// Wallets emit V as 27/28 rather than 0/1; both forms must recover the
	// same signer.
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(KeyMessage)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	recovered, err := RecoverSigner(KeyMessage, hexutil.Encode(sig))
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), recovered)
}

func TestRecoverSignerDifferentMessage(t *testing.T) {
	sigHex, addr := signPersonal(t, KeyMessage)

	recovered, err := RecoverSigner("some other message", sigHex)
	if err == nil {
		require.NotEqual(t, addr, recovered.Hex())
	}
}

func TestRecoverSignerRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		sig  string
	}{
		{"empty", ""},
		{"not hex", "hello"},
		{"missing prefix", "deadbeef"},
		{"too short", "0xdeadbeef"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RecoverSigner(KeyMessage, tc.sig)
			require.Error(t, err)
		})
	}
}

func TestVerifySignatureAgainstAddress(t *testing.T) {
	sigHex, addr := signPersonal(t, KeyMessage)
	_, otherAddr := signPersonal(t, KeyMessage)

	recovered, err := RecoverSigner(KeyMessage, sigHex)
	require.NoError(t, err)

	ok, err := VerifySignatureAgainstAddress(KeyMessage, sigHex, recovered)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, addr, recovered.Hex())

	other, err := RecoverSigner(KeyMessage, sigHex)
	require.NoError(t, err)
	require.NotEqual(t, otherAddr, other.Hex())
}

func TestAddressFromDID(t *testing.T) {
	_, addr := signPersonal(t, KeyMessage)

	tests := []struct {
		name    string
		did     string
		wantErr bool
	}{
		{"plain ethr", "did:ethr:" + addr, false},
		{"with network", "did:ethr:sepolia:" + addr, false},
		{"no address", "did:ethr:sepolia", true},
		{"trailing colon", "did:ethr:", true},
		{"no colons", "not-a-did", true},
		{"non-hex tail", "did:ethr:banana", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AddressFromDID(tc.did)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, addr, got.Hex())
		})
	}
}

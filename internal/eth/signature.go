// Package eth wraps the go-ethereum primitives used for wallet signature
// recovery and did:ethr address handling.
package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyMessage is the fixed message wallets sign to derive their data key.
// The signature itself never leaves the client unverified; the server only
// ever uses the recovered signer address.
const KeyMessage = "DIDHub cryptographic key"

// RecoverSigner returns the address that produced an EIP-191 personal
// signature over msg. sigHex is the 65-byte 0x-prefixed wallet signature.
func RecoverSigner(msg string, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}

	// Wallets emit V as 27/28; go-ethereum expects 0/1.
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash([]byte(msg))
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignatureAgainstAddress reports whether sigHex is a valid personal
// signature over msg by expected.
func VerifySignatureAgainstAddress(msg string, sigHex string, expected common.Address) (bool, error) {
	recovered, err := RecoverSigner(msg, sigHex)
	if err != nil {
		return false, err
	}
	return recovered == expected, nil
}

// AddressFromDID extracts the account address embedded in a did:ethr
// identifier, e.g. did:ethr:sepolia:0xabc... The address is the last
// colon-separated segment.
func AddressFromDID(did string) (common.Address, error) {
	idx := strings.LastIndex(did, ":")
	if idx < 0 || idx == len(did)-1 {
		return common.Address{}, fmt.Errorf("malformed did %q", did)
	}
	hex := did[idx+1:]
	if !common.IsHexAddress(hex) {
		return common.Address{}, fmt.Errorf("did %q does not embed an address", did)
	}
	return common.HexToAddress(hex), nil
}

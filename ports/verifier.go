package ports

import "context"

// PresentationVerifier checks that a Verifiable Presentation is well-formed,
// correctly signed, and bound to the given challenge nonce. On success it
// returns the issuer DID. The verifier must reject a presentation whose
// embedded challenge does not match nonce.
type PresentationVerifier interface {
	VerifyPresentation(ctx context.Context, presentation map[string]any, nonce string) (issuerDID string, err error)

	// VerifyCredential checks a standalone Verifiable Credential and returns
	// its issuer DID. Used for identity issuance, where no challenge binding
	// is involved.
	VerifyCredential(ctx context.Context, credential map[string]any) (issuerDID string, err error)
}

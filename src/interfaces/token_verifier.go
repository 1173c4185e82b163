package interfaces

// -----------------------------------------------------------------------------
// ITokenVerifier resolves a credential token to a user id. Used only by the
// connection gateway for portfolio-mode handshakes.
// -----------------------------------------------------------------------------

type ITokenVerifier interface {

	// -----------------------------------------------------------------------------

	// Verify returns the user id encoded in the token or an error when the
	// token is expired, malformed, or carries a bad signature.
	Verify(token string) (string, error)
}

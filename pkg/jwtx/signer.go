package jwtx

// Signer signs tokens and opaque payloads with a single private key.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	SignBytes(msg []byte) []byte
	PublicJWK() JWK
	Validate() error
}

// NewSignerEdDSA creates an EdDSA signer from a PKCS8 PEM Ed25519 key.
func NewSignerEdDSA(kid string, pemKey []byte) (Signer, error) {
	return newEdDSASigner(kid, pemKey)
}

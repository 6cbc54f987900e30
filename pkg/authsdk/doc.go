/*
Package authsdk is a Go client for the Selfie identity service.

# Client vs Session

Client covers the public endpoints and creates sessions:

	client := authsdk.NewClient("https://id.example.com")

	_, err := client.Register(ctx, authsdk.RegisterRequest{
		Email:      "alice@example.com",
		Passphrase: "correct horse battery staple",
	})

	// The emailed link carries the token.
	err = client.VerifyEmail(ctx, token)

	session, err := client.Login(ctx, "alice@example.com", "correct horse battery staple", "")

A Session holds the token pair and refreshes the access token 30 seconds
before it expires:

	me, err := session.Me(ctx)

	setup, err := session.SetupTOTP(ctx)
	// Show setup.ProvisioningURI as a QR code, then confirm a code.
	err = session.EnableTOTP(ctx, code)

# Errors

Every non-success response is returned as *APIError. The predefined values
match by code:

	if errors.Is(err, authsdk.ErrRateLimited) {
		// account is locked
	}

Handlers in the service write the same type with WriteError, so the wire
format is defined once.

# Verifying tokens elsewhere

GetJWKS returns the published keys. Load them into a jwtx.KeySet and build a
jwtx.Verifier to validate access tokens without calling the service.
*/
package authsdk

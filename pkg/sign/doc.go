// Package sign provides secp256k1 signing for channel confirmations.
//
// Channel parties never sign raw bytes: every confirmation is an EIP-712 typed
// message (see package flankk for the schemas). This package wraps a private key
// behind the Signer interface, signs typed data with it, and recovers or
// verifies the signer of a typed-data signature.
//
// Usage
//
//	signer, err := sign.NewEthereumSigner(privateKeyHex)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	td := flankk.UpdateChannelTypedData(domain, channelID, stateHash)
//	sig, err := sign.SignTypedData(signer, td)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ok, err := sign.VerifyTypedData(td, sig, signer.Address())
package sign

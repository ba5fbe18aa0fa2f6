// Package evm reads the settlement chain for channels.
//
// A Reader implements channel.ChainReader and channel.PermitReader on top of
// any Backend, usually an *ethclient.Client obtained with Dial:
//
//	reader, err := evm.Dial(ctx, rpcURL, chainID)
//	cc := &channel.ChainContext{ChainID: chainID, Reader: reader}
//
// Verifier calls fail fast. Latest block reads are retried.
package evm

// Package chain implements core.EscrowClient over JSON-RPC with go-ethereum
// bound contracts, one client per configured chain.
package chain

package rpc

// Node RPC paths. Centralized so tests and client methods cannot drift.
const (
	balancePath       = "/v1/query/balance"
	tokenMetadataPath = "/v1/query/token-metadata"
)

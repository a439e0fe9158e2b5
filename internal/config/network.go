// Package config also contains the ledger network surface.
package config

// Network defines the RPC endpoint and commitment level used for reads and preflight.
type Network struct {
	RpcURL     string `yaml:"rpc_url"`
	Commitment string `yaml:"commitment"` // processed|confirmed|finalized
}

// ResolveURL picks the endpoint the way the command flags ask for it:
// --local wins, then an explicit --rpc, then the configured URL.
func (n Network) ResolveURL(local bool, override string) string {
	if local {
		return LocalURL
	}
	if override != "" {
		return override
	}
	if n.RpcURL == "" {
		return DevnetURL
	}
	return n.RpcURL
}

package pairing

import (
	"encoding/json"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"pairing/internal/jsonrpc"
)

// Permissions is the JSON-RPC method whitelist a settled pairing
// authorizes for inbound application requests (spec §3, §4.E
// invariant 6). Membership testing is the hot path for every inbound
// request, so the underlying set favors cheap Contains over ordering.
type Permissions struct {
	JSONRPC JSONRPCPermissions `json:"jsonrpc"`
}

// JSONRPCPermissions is an ordered-irrelevant set of whitelisted
// method names (spec §9 "Permissions whitelist").
type JSONRPCPermissions struct {
	Methods map[string]struct{} `json:"-"`
}

// NewProposalPermissions returns the permission set a fresh proposal
// whitelists at birth: exactly session_propose (spec §1, §4.B).
func NewProposalPermissions() Permissions {
	return Permissions{JSONRPC: JSONRPCPermissions{
		Methods: map[string]struct{}{jsonrpc.MethodSessionPropose: {}},
	}}
}

// Allows reports whether method may be dispatched on a settled
// pairing with these permissions. Reserved pairing-protocol methods
// bypass the whitelist entirely (spec §4.E).
func (p Permissions) Allows(method string) bool {
	if jsonrpc.IsReservedMethod(method) {
		return true
	}
	methods := maps.Keys(p.JSONRPC.Methods)
	return slices.Contains(methods, method)
}

// Methods returns a stable, sorted snapshot of the whitelisted method
// names, for logging and for the JSON representation below.
func (p Permissions) Methods() []string {
	methods := maps.Keys(p.JSONRPC.Methods)
	slices.Sort(methods)
	return methods
}

// MarshalJSON renders the permission set as {"jsonrpc":{"methods":[...]}},
// the wire shape spec §3 describes.
func (p Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		JSONRPC struct {
			Methods []string `json:"methods"`
		} `json:"jsonrpc"`
	}{
		JSONRPC: struct {
			Methods []string `json:"methods"`
		}{Methods: p.Methods()},
	})
}

// UnmarshalJSON parses the wire shape back into a set.
func (p *Permissions) UnmarshalJSON(data []byte) error {
	var wire struct {
		JSONRPC struct {
			Methods []string `json:"methods"`
		} `json:"jsonrpc"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	methods := make(map[string]struct{}, len(wire.JSONRPC.Methods))
	for _, m := range wire.JSONRPC.Methods {
		methods[m] = struct{}{}
	}
	p.JSONRPC.Methods = methods
	return nil
}

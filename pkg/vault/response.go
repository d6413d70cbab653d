package vault

// Response is the generic envelope returned by the secret store.
type Response struct {
	RequestID     string         `json:"request_id,omitempty"`
	LeaseID       string         `json:"lease_id,omitempty"`
	LeaseDuration int            `json:"lease_duration,omitempty"`
	Renewable     bool           `json:"renewable,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Auth          *AuthBlock     `json:"auth,omitempty"`
	WrapInfo      *WrapInfo      `json:"wrap_info,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// AuthBlock carries the credentials minted by a login call.
type AuthBlock struct {
	ClientToken   string   `json:"client_token"`
	Accessor      string   `json:"accessor"`
	Policies      []string `json:"policies,omitempty"`
	LeaseDuration int      `json:"lease_duration,omitempty"`
	Renewable     bool     `json:"renewable,omitempty"`
}

// WrapInfo describes a response-wrapped result. The Token is the one-time
// wrapping token handed to the build; the real credentials are only
// reachable by unwrapping it.
type WrapInfo struct {
	Token           string `json:"token"`
	Accessor        string `json:"accessor"`
	TTL             int    `json:"ttl"`
	CreationTime    string `json:"creation_time,omitempty"`
	WrappedAccessor string `json:"wrapped_accessor,omitempty"`
}

// SessionToken is a usable store session: the token value plus the opaque
// accessor that can revoke it. The accessor is not secret and remains valid
// as a revocation handle after the token value has been consumed elsewhere.
type SessionToken struct {
	Token    string
	Accessor string
}

// DataString returns the named field of the response's data block as a
// string, or "" if absent or not a string.
func (r *Response) DataString(key string) string {
	if r == nil || r.Data == nil {
		return ""
	}
	s, _ := r.Data[key].(string)
	return s
}

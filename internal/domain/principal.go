package domain

// Source describes where a caller entered the system from.
type Source string

const (
	// SourceLocal is a caller on the local deployment with no service token
	// configured. Full trust.
	SourceLocal Source = "local"
	// SourceWorker is a caller arriving through the edge worker with a valid
	// service token.
	SourceWorker Source = "worker"
)

// AuthMethod describes how a caller authenticated.
type AuthMethod string

const (
	// AuthMethodOIDC means the edge verified the user against the identity
	// provider and forwarded the verified email.
	AuthMethodOIDC AuthMethod = "oidc"
)

// Principal captures normalized caller identity for one MCP request.
type Principal struct {
	Source     Source
	AuthMethod AuthMethod
	Email      string
	// Verified is true when the forwarded email passed the email policy.
	// A worker caller without a verified email is an anonymous remote
	// (typically the upstream tool-discovery sync) and is limited to
	// handshake methods.
	Verified bool
	ClientIP string
}

// Local reports whether the caller is the local deployment itself.
func (p Principal) Local() bool {
	return p.Source == SourceLocal
}

// CanUseTools reports whether the caller may list or invoke tools.
func (p Principal) CanUseTools() bool {
	return p.Source == SourceLocal || p.Verified
}

package externalsource

import (
	"context"

	"mcpbox/internal/domain/secret"
	"mcpbox/internal/utils/platformerrors"
)

// CredentialResolver turns a source's auth config into a plaintext
// credential: the named server secret for bearer/header auth, a live
// access token for oauth, empty for none. It is shared by discovery
// sessions and sandbox registration.
type CredentialResolver struct {
	secrets *secret.Service
	oauth   *OAuthManager
}

// NewCredentialResolver creates a credential resolver.
func NewCredentialResolver(secrets *secret.Service, oauth *OAuthManager) *CredentialResolver {
	return &CredentialResolver{secrets: secrets, oauth: oauth}
}

// Token resolves the credential of a source.
func (r *CredentialResolver) Token(ctx context.Context, src *Source) (string, error) {
	switch src.AuthType {
	case AuthNone:
		return "", nil
	case AuthBearer, AuthHeader:
		if src.AuthSecretName == "" {
			return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "source has no auth secret configured", nil, "extsrc-002")
		}
		return r.secrets.DecryptByName(ctx, src.ServerID, src.AuthSecretName)
	case AuthOAuth:
		return r.oauth.AccessToken(ctx, src)
	default:
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "unknown auth type "+string(src.AuthType), nil, "extsrc-003")
	}
}

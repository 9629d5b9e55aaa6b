package secret

import (
	"context"
	"regexp"

	"github.com/google/uuid"

	"mcpbox/internal/utils/crypto"
	"mcpbox/internal/utils/platformerrors"
)

var keyNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Service provides business logic for server secret operations. Values are
// AES-GCM encrypted at rest and only ever decrypted for sandbox registration
// and code testing.
type Service struct {
	repo   Repository
	cipher *crypto.Cipher
}

// NewService creates a new secret service.
func NewService(repo Repository, cipher *crypto.Cipher) *Service {
	return &Service{repo: repo, cipher: cipher}
}

// Create declares a secret key for a server. value may be empty, which
// creates a placeholder row awaiting a value from the admin surface.
func (s *Service) Create(ctx context.Context, serverID, keyName, value, description string) (*ServerSecret, error) {
	if serverID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "server ID is required", nil, "secret-001")
	}
	if !keyNamePattern.MatchString(keyName) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "key name must match ^[A-Za-z_][A-Za-z0-9_]*$", nil, "secret-002")
	}

	existing, err := s.repo.FindByServerAndKey(ctx, serverID, keyName)
	if err != nil && !platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict, "a secret with this key already exists for the server", nil, "secret-003")
	}

	sec := &ServerSecret{
		ID:          uuid.NewString(),
		ServerID:    serverID,
		KeyName:     keyName,
		Description: description,
	}
	if value != "" {
		encrypted, err := s.cipher.EncryptString(value, crypto.AADServerSecrets)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encrypt secret value", err, "secret-004")
		}
		sec.EncryptedValue = &encrypted
	}
	if err := s.repo.Create(ctx, sec); err != nil {
		return nil, err
	}
	return sec, nil
}

// SetValue stores (or replaces) the value of an existing secret.
func (s *Service) SetValue(ctx context.Context, id, value string) (*ServerSecret, error) {
	if value == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "secret value is required", nil, "secret-005")
	}
	sec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.cipher.EncryptString(value, crypto.AADServerSecrets)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to encrypt secret value", err, "secret-006")
	}
	sec.EncryptedValue = &encrypted
	if err := s.repo.Update(ctx, sec); err != nil {
		return nil, err
	}
	return sec, nil
}

// List returns the secrets of a server with values masked.
func (s *Service) List(ctx context.Context, serverID string) ([]*Info, error) {
	secrets, err := s.repo.FindByServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	infos := make([]*Info, 0, len(secrets))
	for _, sec := range secrets {
		infos = append(infos, &Info{
			ID:          sec.ID,
			ServerID:    sec.ServerID,
			KeyName:     sec.KeyName,
			Description: sec.Description,
			HasValue:    sec.HasValue(),
			CreatedAt:   sec.CreatedAt,
			UpdatedAt:   sec.UpdatedAt,
		})
	}
	return infos, nil
}

// Get returns one secret with its value masked.
func (s *Service) Get(ctx context.Context, id string) (*ServerSecret, error) {
	return s.repo.FindByID(ctx, id)
}

// Delete removes a secret.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// DecryptValue returns the plaintext of one secret, or NOT_FOUND for a
// placeholder.
func (s *Service) DecryptValue(ctx context.Context, sec *ServerSecret) (string, error) {
	if !sec.HasValue() {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotFound, "secret has no value set", nil, "secret-007")
	}
	plain, err := s.cipher.DecryptString(*sec.EncryptedValue, crypto.AADServerSecrets)
	if err != nil {
		return "", platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to decrypt secret value", err, "secret-008")
	}
	return plain, nil
}

// DecryptByName returns the plaintext of the server secret with the given
// key name. External sources reference their credentials this way.
func (s *Service) DecryptByName(ctx context.Context, serverID, keyName string) (string, error) {
	sec, err := s.repo.FindByServerAndKey(ctx, serverID, keyName)
	if err != nil {
		return "", err
	}
	return s.DecryptValue(ctx, sec)
}

// DecryptAll returns the decrypted key/value environment of a server.
// Placeholder secrets are skipped; a decryption failure aborts so a stale
// key never produces a partial environment silently.
func (s *Service) DecryptAll(ctx context.Context, serverID string) (map[string]string, error) {
	secrets, err := s.repo.FindByServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string, len(secrets))
	for _, sec := range secrets {
		if !sec.HasValue() {
			continue
		}
		plain, err := s.cipher.DecryptString(*sec.EncryptedValue, crypto.AADServerSecrets)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal, "failed to decrypt secret "+sec.KeyName, err, "secret-009")
		}
		env[sec.KeyName] = plain
	}
	return env, nil
}

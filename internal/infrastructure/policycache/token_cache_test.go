package policycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpbox/internal/domain/settings"
	"mcpbox/internal/utils/crypto"
)

type fakeSettingsRepo struct {
	rows map[string]*settings.Setting
	err  error
	gets int
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{rows: make(map[string]*settings.Setting)}
}

func (f *fakeSettingsRepo) Get(ctx context.Context, key string) (*settings.Setting, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	setting, ok := f.rows[key]
	if !ok {
		return nil, nil
	}
	cp := *setting
	return &cp, nil
}

func (f *fakeSettingsRepo) List(ctx context.Context) ([]*settings.Setting, error) {
	var out []*settings.Setting
	for _, s := range f.rows {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeSettingsRepo) Upsert(ctx context.Context, setting *settings.Setting) error {
	cp := *setting
	f.rows[setting.Key] = &cp
	return nil
}

func (f *fakeSettingsRepo) Delete(ctx context.Context, key string) error {
	delete(f.rows, key)
	return nil
}

func (f *fakeSettingsRepo) setServiceToken(t *testing.T, cipher *crypto.Cipher, token string) {
	t.Helper()
	encrypted, err := cipher.EncryptString(token, crypto.AADServiceToken)
	require.NoError(t, err)
	f.rows[settings.KeyServiceToken] = &settings.Setting{
		Key:       settings.KeyServiceToken,
		Value:     encrypted,
		Encrypted: true,
	}
}

func newTestCipher(t *testing.T) *crypto.Cipher {
	t.Helper()
	cipher, err := crypto.New("policycache-test-key")
	require.NoError(t, err)
	return cipher
}

func TestServiceTokenCacheDisabledWhenUnset(t *testing.T) {
	repo := newFakeSettingsRepo()
	cache := NewServiceTokenCacheWithTTL(repo, newTestCipher(t), time.Minute)

	assert.False(t, cache.AuthEnabled(context.Background()))
	assert.False(t, cache.Matches(context.Background(), "anything"))
}

func TestServiceTokenCacheMatchesConfiguredToken(t *testing.T) {
	repo := newFakeSettingsRepo()
	cipher := newTestCipher(t)
	repo.setServiceToken(t, cipher, "sk-remote-token")

	cache := NewServiceTokenCacheWithTTL(repo, cipher, time.Minute)

	assert.True(t, cache.AuthEnabled(context.Background()))
	assert.True(t, cache.Matches(context.Background(), "sk-remote-token"))
	assert.False(t, cache.Matches(context.Background(), "sk-wrong-token"))
	assert.False(t, cache.Matches(context.Background(), ""))
}

func TestServiceTokenCacheFailsClosedOnDBError(t *testing.T) {
	repo := newFakeSettingsRepo()
	repo.err = errors.New("connection refused")

	cache := NewServiceTokenCacheWithTTL(repo, newTestCipher(t), time.Minute)

	assert.True(t, cache.AuthEnabled(context.Background()))
	assert.False(t, cache.Matches(context.Background(), "sk-remote-token"))
}

func TestServiceTokenCacheFailsClosedOnDecryptError(t *testing.T) {
	repo := newFakeSettingsRepo()
	repo.rows[settings.KeyServiceToken] = &settings.Setting{
		Key:       settings.KeyServiceToken,
		Value:     "bm90LWEtcmVhbC1jaXBoZXJ0ZXh0",
		Encrypted: true,
	}

	cache := NewServiceTokenCacheWithTTL(repo, newTestCipher(t), time.Minute)

	assert.True(t, cache.AuthEnabled(context.Background()))
	assert.False(t, cache.Matches(context.Background(), "anything"))
}

func TestServiceTokenCacheCachesWithinTTL(t *testing.T) {
	repo := newFakeSettingsRepo()
	cipher := newTestCipher(t)
	repo.setServiceToken(t, cipher, "sk-remote-token")

	cache := NewServiceTokenCacheWithTTL(repo, cipher, time.Minute)

	cache.AuthEnabled(context.Background())
	cache.Matches(context.Background(), "sk-remote-token")
	cache.AuthEnabled(context.Background())

	assert.Equal(t, 1, repo.gets)
}

func TestServiceTokenCacheInvalidateForcesReload(t *testing.T) {
	repo := newFakeSettingsRepo()
	cipher := newTestCipher(t)
	cache := NewServiceTokenCacheWithTTL(repo, cipher, time.Minute)

	assert.False(t, cache.AuthEnabled(context.Background()))

	repo.setServiceToken(t, cipher, "sk-rotated")
	cache.Invalidate()

	assert.True(t, cache.AuthEnabled(context.Background()))
	assert.True(t, cache.Matches(context.Background(), "sk-rotated"))
}

func TestServiceTokenCacheRecoversAfterDBError(t *testing.T) {
	repo := newFakeSettingsRepo()
	cipher := newTestCipher(t)
	repo.err = errors.New("connection refused")

	cache := NewServiceTokenCacheWithTTL(repo, cipher, time.Minute)
	assert.True(t, cache.AuthEnabled(context.Background()))

	repo.err = nil
	repo.setServiceToken(t, cipher, "sk-remote-token")
	cache.Invalidate()

	assert.True(t, cache.Matches(context.Background(), "sk-remote-token"))
}

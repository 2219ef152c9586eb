package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uzzalhcse/proxynest/internal/storage"
	"github.com/uzzalhcse/proxynest/pkg/models"
)

// memStore is a minimal in-memory Store for registry tests.
type memStore struct {
	s *models.Settings
}

func (m *memStore) Get(ctx context.Context) (models.Settings, error) {
	if m.s == nil {
		return models.Settings{}, storage.ErrNotFound
	}
	return *m.s, nil
}

func (m *memStore) Seed(ctx context.Context, defaults models.Settings) (models.Settings, error) {
	if m.s == nil {
		m.s = &defaults
	}
	return *m.s, nil
}

func (m *memStore) Upsert(ctx context.Context, s models.Settings) error {
	m.s = &s
	return nil
}

func TestRegistry_LoadSeedsDefaultsOnFirstUse(t *testing.T) {
	store := &memStore{}
	reg := New(store)

	s, err := reg.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), s)
	assert.Equal(t, s, reg.Snapshot())
}

func TestRegistry_UpdateRejectsEmptyPatch(t *testing.T) {
	store := &memStore{}
	reg := New(store)
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	_, err = reg.Update(context.Background(), models.SettingsPatch{})
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRegistry_UpdateAppliesPatchAndRefreshesSnapshot(t *testing.T) {
	store := &memStore{}
	reg := New(store)
	_, err := reg.Load(context.Background())
	require.NoError(t, err)

	newMax := 9
	updated, err := reg.Update(context.Background(), models.SettingsPatch{MaxInstancesPerProxy: &newMax})
	require.NoError(t, err)
	assert.Equal(t, 9, updated.MaxInstancesPerProxy)
	assert.Equal(t, 9, reg.Snapshot().MaxInstancesPerProxy)
}

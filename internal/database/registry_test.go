package database

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records which profile it was opened for and whether it was
// closed.
type fakeClient struct {
	profile Profile
	closed  bool
}

func (f *fakeClient) Query(context.Context, string, int) (*QueryResult, error) {
	return &QueryResult{Rows: []map[string]any{}}, nil
}

func (f *fakeClient) ListTables(context.Context) ([]TableInfo, error) { return nil, nil }

func (f *fakeClient) DescribeTable(context.Context, string) (*TableSchema, error) {
	return nil, nil
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

// fakeOpener returns a registry option that counts opens and retains every
// client it produced.
func fakeOpener(opened *[]*fakeClient) RegistryOption {
	return withOpener(func(p Profile, _ *slog.Logger) (Client, error) {
		client := &fakeClient{profile: p}
		*opened = append(*opened, client)
		return client, nil
	})
}

func testProfile(name string) Profile {
	return Profile{Name: name, Driver: DriverSQLite, DSN: name + ".db"}
}

func TestRegistryOpensLazily(t *testing.T) {
	var opened []*fakeClient
	r, err := NewRegistry([]Profile{testProfile("a"), testProfile("b")}, fakeOpener(&opened))
	require.NoError(t, err)

	assert.Empty(t, opened, "nothing should open before first use")

	first, err := r.Client("a")
	require.NoError(t, err)
	require.Len(t, opened, 1)

	// Same profile reuses the cached client.
	again, err := r.Client("a")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Len(t, opened, 1)

	_, err = r.Client("b")
	require.NoError(t, err)
	assert.Len(t, opened, 2)
}

func TestRegistryEmptyNameSingleProfile(t *testing.T) {
	var opened []*fakeClient
	r, err := NewRegistry([]Profile{testProfile("analytics")}, fakeOpener(&opened))
	require.NoError(t, err)

	_, err = r.Client("")
	require.NoError(t, err)
	require.Len(t, opened, 1)
	assert.Equal(t, "analytics", opened[0].profile.Name)
}

func TestRegistryEmptyNamePrefersDefault(t *testing.T) {
	var opened []*fakeClient
	r, err := NewRegistry(
		[]Profile{testProfile("analytics"), testProfile(DefaultProfileName)},
		fakeOpener(&opened),
	)
	require.NoError(t, err)

	_, err = r.Client("")
	require.NoError(t, err)
	require.Len(t, opened, 1)
	assert.Equal(t, DefaultProfileName, opened[0].profile.Name)
}

func TestRegistryEmptyNameAmbiguous(t *testing.T) {
	var opened []*fakeClient
	r, err := NewRegistry([]Profile{testProfile("a"), testProfile("b")}, fakeOpener(&opened))
	require.NoError(t, err)

	_, err = r.Client("")
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestRegistryUnknownProfile(t *testing.T) {
	var opened []*fakeClient
	r, err := NewRegistry([]Profile{testProfile("a")}, fakeOpener(&opened))
	require.NoError(t, err)

	_, err = r.Client("nope")
	require.ErrorIs(t, err, ErrUnknownProfile)

	_, err = r.Profile("nope")
	require.ErrorIs(t, err, ErrUnknownProfile)
}

func TestRegistryDuplicateProfiles(t *testing.T) {
	_, err := NewRegistry([]Profile{testProfile("a"), testProfile("a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistryRejectsInvalidProfile(t *testing.T) {
	_, err := NewRegistry([]Profile{{Name: "broken", Driver: DriverSQLite}})
	require.Error(t, err)
}

func TestRegistryRequiresProfiles(t *testing.T) {
	_, err := NewRegistry(nil)
	require.Error(t, err)
}

func TestRegistryCloseClosesClients(t *testing.T) {
	var opened []*fakeClient
	r, err := NewRegistry([]Profile{testProfile("a"), testProfile("b")}, fakeOpener(&opened))
	require.NoError(t, err)

	_, err = r.Client("a")
	require.NoError(t, err)
	_, err = r.Client("b")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	for _, client := range opened {
		assert.True(t, client.closed)
	}

	// The registry stays usable and reopens on demand.
	_, err = r.Client("a")
	require.NoError(t, err)
	assert.Len(t, opened, 3)
}

func TestRegistryProfilesSorted(t *testing.T) {
	r, err := NewRegistry([]Profile{testProfile("zeta"), testProfile("alpha"), testProfile("mid")})
	require.NoError(t, err)

	profiles := r.Profiles()
	require.Len(t, profiles, 3)
	assert.Equal(t, "alpha", profiles[0].Name)
	assert.Equal(t, "mid", profiles[1].Name)
	assert.Equal(t, "zeta", profiles[2].Name)
}

package resolver

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cesmii/profiledesigner/cache"
	"github.com/cesmii/profiledesigner/internal/nodesettest"
	"github.com/cesmii/profiledesigner/model"
)

var tenant = cache.Scope{Tenant: "acme"}

func newCache(t *testing.T) *cache.BackedCache {
	t.Helper()
	fb, err := cache.NewFileBackend(t.TempDir())
	require.NoError(t, err)
	return cache.New(fb)
}

func uris(res *model.ImportResult) []string {
	out := make([]string, len(res.Models))
	for i, m := range res.Models {
		out[i] = m.Identity.ModelURI
	}
	return out
}

// assertDependencyOrder checks that every model follows its requirements.
func assertDependencyOrder(t *testing.T, res *model.ImportResult) {
	t.Helper()
	pos := make(map[string]int)
	for i, m := range res.Models {
		pos[m.Identity.ModelURI] = i
	}
	for i, m := range res.Models {
		for _, dep := range m.Dependencies {
			j, ok := pos[dep]
			require.True(t, ok, "%s requires %s which was not loaded", m.Identity.ModelURI, dep)
			assert.Less(t, j, i, "%s must come after %s", m.Identity.ModelURI, dep)
		}
	}
}

func TestResolve_OrdersDependenciesFirst(t *testing.T) {
	res, err := Resolve(context.Background(),
		[][]byte{nodesettest.DependentB(), nodesettest.Minimal()},
		newCache(t), Options{Scope: tenant})
	require.NoError(t, err)
	assert.Equal(t, []string{nodesettest.NamespaceA, nodesettest.NamespaceB}, uris(res))
	assert.True(t, res.Succeeded())
}

func TestResolve_DependencyOrderProperty(t *testing.T) {
	// d requires b and c, b and c require a, e is independent.
	docs := map[string][]byte{
		"urn:a": nodesettest.Requiring("urn:a"),
		"urn:b": nodesettest.Requiring("urn:b", "urn:a"),
		"urn:c": nodesettest.Requiring("urn:c", "urn:a"),
		"urn:d": nodesettest.Requiring("urn:d", "urn:b", "urn:c"),
		"urn:e": nodesettest.Requiring("urn:e"),
	}
	names := []string{"urn:a", "urn:b", "urn:c", "urn:d", "urn:e"}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(names), func(x, y int) { names[x], names[y] = names[y], names[x] })
		payloads := make([][]byte, len(names))
		for j, n := range names {
			payloads[j] = docs[n]
		}

		res, err := Resolve(context.Background(), payloads, newCache(t), Options{Scope: tenant})
		require.NoError(t, err)
		require.Len(t, res.Models, len(names))
		assertDependencyOrder(t, res)
	}
}

func TestResolve_LeavesFirst(t *testing.T) {
	res, err := Resolve(context.Background(), [][]byte{
		nodesettest.Requiring("urn:x", "urn:leaf"),
		nodesettest.Requiring("urn:y"),
		nodesettest.Requiring("urn:leaf"),
	}, newCache(t), Options{Scope: tenant})
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:y", "urn:leaf", "urn:x"}, uris(res))
}

func TestResolve_MissingDependency(t *testing.T) {
	res, err := Resolve(context.Background(), [][]byte{nodesettest.DependentB()}, newCache(t), Options{Scope: tenant})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingDependency)

	var missing *MissingDependencyError
	require.True(t, errors.As(err, &missing))
	require.Len(t, missing.Missing, 1)
	assert.Equal(t, nodesettest.NamespaceA, missing.Missing[0].ModelURI)

	require.NotNil(t, res)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.ErrorMessage, nodesettest.NamespaceA)
	assert.Contains(t, res.ErrorMessage, "(Version: 1.0.0, PubDate: 2023-01-01T00:00:00Z)")
	require.Len(t, res.MissingModels, 1)
	assert.Equal(t, nodesettest.NamespaceA, res.MissingModels[0].ModelURI)

	b := res.Find(nodesettest.NamespaceB)
	require.NotNil(t, b)
	assert.True(t, b.NewInThisImport)
}

func TestResolve_LoadsFromCacheToFixedPoint(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	// The cache holds x and y; x requires y. The batch only carries z.
	seed := model.NewImportResult()
	_, err := c.LoadBytes(ctx, seed, nodesettest.Requiring("urn:x", "urn:y"), tenant)
	require.NoError(t, err)
	_, err = c.LoadBytes(ctx, seed, nodesettest.Requiring("urn:y"), tenant)
	require.NoError(t, err)

	res, err := Resolve(ctx, [][]byte{nodesettest.Requiring("urn:z", "urn:x")}, c, Options{Scope: tenant})
	require.NoError(t, err)
	assert.Equal(t, []string{"urn:y", "urn:x", "urn:z"}, uris(res))

	assert.True(t, res.Find("urn:z").NewInThisImport)
	assert.False(t, res.Find("urn:x").NewInThisImport)
	assert.False(t, res.Find("urn:y").NewInThisImport)
}

func TestResolve_FailOnAlreadyImported(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)
	opts := Options{Scope: tenant, FailOnAlreadyImported: true}

	_, err := Resolve(ctx, [][]byte{nodesettest.Minimal()}, c, opts)
	require.NoError(t, err)

	res, err := Resolve(ctx, [][]byte{nodesettest.Minimal()}, c, opts)
	assert.ErrorIs(t, err, ErrAlreadyImported)
	assert.NotEmpty(t, res.ErrorMessage)

	opts.FailOnAlreadyImported = false
	_, err = Resolve(ctx, [][]byte{nodesettest.Minimal()}, c, opts)
	assert.NoError(t, err)
}

func TestResolve_Cycle(t *testing.T) {
	_, err := Resolve(context.Background(), [][]byte{
		nodesettest.Requiring("urn:p", "urn:q"),
		nodesettest.Requiring("urn:q", "urn:p"),
	}, newCache(t), Options{Scope: tenant})
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestResolve_RollbackAfterFailure(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	res, err := Resolve(ctx, [][]byte{nodesettest.DependentB()}, c, Options{Scope: tenant})
	require.ErrorIs(t, err, ErrMissingDependency)
	require.NoError(t, c.DeleteNewlyAdded(ctx, res))

	found, err := c.LoadIdentity(ctx, model.NewImportResult(), model.ModelIdentity{ModelURI: nodesettest.NamespaceB}, tenant)
	require.NoError(t, err)
	assert.False(t, found)
}

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func petclinicResolver() *Resolver {
	return NewResolver(
		&Policy{PathPrefix: "/owners", Domain: DomainOwnerLike, ToggleName: "owner-service"},
		&Policy{PathPrefix: "/pets", Domain: DomainFixedLegacy},
		&Policy{PathPrefix: "/vets", Domain: DomainFixedLegacy},
		&Policy{PathPrefix: "/visits", Domain: DomainFixedLegacy},
		&Policy{PathPrefix: "/", Domain: DomainFixedLegacy},
	)
}

func TestResolver_PrefixMatch(t *testing.T) {
	r := petclinicResolver()

	tests := []struct {
		path   string
		prefix string
	}{
		{"/owners", "/owners"},
		{"/owners/5", "/owners"},
		{"/owners/5/pets/3", "/owners"},
		{"/pets", "/pets"},
		{"/vets/1", "/vets"},
		{"/visits", "/visits"},
		{"/", "/"},
		{"/unknown", "/"},
		{"/ownership", "/"},
	}

	for _, tt := range tests {
		policy := r.Resolve(tt.path)
		require.NotNil(t, policy, "path %s", tt.path)
		assert.Equal(t, tt.prefix, policy.PathPrefix, "path %s", tt.path)
	}
}

func TestResolver_FirstMatchWins(t *testing.T) {
	// Registration order decides between overlapping prefixes.
	r := NewResolver(
		&Policy{PathPrefix: "/owners", Domain: DomainOwnerLike, ToggleName: "owner-service"},
		&Policy{PathPrefix: "/owners", Domain: DomainFixedLegacy},
	)

	policy := r.Resolve("/owners/5")
	require.NotNil(t, policy)
	assert.Equal(t, DomainOwnerLike, policy.Domain)
}

func TestResolver_NoMatchWithoutCatchAll(t *testing.T) {
	r := NewResolver(
		&Policy{PathPrefix: "/owners", Domain: DomainOwnerLike, ToggleName: "owner-service"},
	)

	assert.Nil(t, r.Resolve("/vets"))
}

func TestResolver_CatchAllMakesResolutionTotal(t *testing.T) {
	r := petclinicResolver()

	for _, path := range []string{"/", "/anything", "/a/b/c", "/owners2"} {
		require.NotNil(t, r.Resolve(path), "path %s", path)
	}
}

func TestResolver_Register(t *testing.T) {
	r := NewResolver()
	assert.Nil(t, r.Resolve("/owners"))

	r.Register(&Policy{PathPrefix: "/owners", Domain: DomainOwnerLike, ToggleName: "owner-service"})
	require.NotNil(t, r.Resolve("/owners"))
	assert.Len(t, r.Policies(), 1)
}

func TestPolicy_IsOwnerLike(t *testing.T) {
	assert.True(t, (&Policy{Domain: DomainOwnerLike}).IsOwnerLike())
	assert.False(t, (&Policy{Domain: DomainFixedLegacy}).IsOwnerLike())
}

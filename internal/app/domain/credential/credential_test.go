package credential

import (
	"github.com/stretchr/testify/assert"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, Credential{Username: "bot"}.Validate(), ErrNoAccessToken)
	assert.Error(t, Credential{AccessToken: "abc"}.Validate())
	assert.NoError(t, Credential{Username: "bot", AccessToken: "abc"}.Validate())
}

func TestPassword(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "oauth:abc", Credential{AccessToken: "abc"}.Password())
	assert.Equal(t, "oauth:abc", Credential{AccessToken: "oauth:abc"}.Password())
}

func TestRenewedLeavesOriginalUntouched(t *testing.T) {
	t.Parallel()

	old := Credential{Username: "bot", AccessToken: "a1", RefreshToken: "r1", Scopes: "chat:read"}

	next := old.Renewed("a2", "r2")
	assert.Equal(t, Credential{Username: "bot", AccessToken: "a2", RefreshToken: "r2", Scopes: "chat:read"}, next)
	assert.Equal(t, "a1", old.AccessToken)

	kept := old.Renewed("a3", "")
	assert.Equal(t, "r1", kept.RefreshToken)
}

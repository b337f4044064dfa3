package api_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/api"
	"github.com/warp/leave-ledger/ledger"
)

func newTestAuth(t *testing.T) *api.AuthManager {
	t.Helper()
	auth, err := api.NewAuthManager("test-secret", "leave-ledger-test", time.Hour)
	require.NoError(t, err)
	return auth
}

func TestAuth_IssueAndVerifyRoundTrip(t *testing.T) {
	auth := newTestAuth(t)

	token, err := auth.Issue(time.Now(), "admin_master", ledger.RoleSeniorAdmin)
	require.NoError(t, err)

	actor, err := auth.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin_master", actor.ID)
	assert.Equal(t, ledger.RoleSeniorAdmin, actor.Role)
}

func TestAuth_ExpiredTokenRejected(t *testing.T) {
	auth := newTestAuth(t)

	// Issued two hours ago with a one-hour TTL, well past the leeway
	token, err := auth.Issue(time.Now().Add(-2*time.Hour), "admin_1", ledger.RoleOperator)
	require.NoError(t, err)

	_, err = auth.Verify(token)
	assert.Error(t, err)
}

func TestAuth_SystemRoleNotIssuableOverHTTP(t *testing.T) {
	// The system actor belongs to in-process schedulers; a token claiming it
	// must not authenticate.
	auth := newTestAuth(t)

	token, err := auth.Issue(time.Now(), "accrual-generator", ledger.RoleSystem)
	require.NoError(t, err)

	_, err = auth.Verify(token)
	assert.Error(t, err)
}

func TestAuth_IssuerMismatchRejected(t *testing.T) {
	auth := newTestAuth(t)
	other, err := api.NewAuthManager("test-secret", "some-other-service", time.Hour)
	require.NoError(t, err)

	token, err := other.Issue(time.Now(), "admin_1", ledger.RoleOperator)
	require.NoError(t, err)

	_, err = auth.Verify(token)
	assert.Error(t, err)
}

func TestAuth_EmptySecretRefused(t *testing.T) {
	_, err := api.NewAuthManager("", "leave-ledger-test", time.Hour)
	assert.Error(t, err)
}

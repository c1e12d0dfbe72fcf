package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Grant("engine", CapOperator)
	r.Grant("ops", CapApprover|CapAdmin)

	assert.True(t, r.HasCapability("engine", CapOperator))
	assert.False(t, r.HasCapability("engine", CapApprover))
	assert.True(t, r.HasCapability("ops", CapApprover|CapAdmin))
	assert.False(t, r.HasCapability("ops", CapApprover|CapOperator))
	assert.False(t, r.HasCapability("", CapOperator))

	r.Revoke("ops", CapAdmin)
	assert.True(t, r.HasCapability("ops", CapApprover))
	assert.False(t, r.HasCapability("ops", CapAdmin))

	r.Revoke("ops", CapApprover)
	assert.Equal(t, Capability(0), r.Roles("ops"))
}

func TestRequire(t *testing.T) {
	r := NewRegistry()
	r.Grant("admin", CapAdmin)

	assert.NoError(t, Require(r, "admin", CapAdmin))
	assert.ErrorIs(t, Require(r, "mallory", CapAdmin), vaulterr.ErrUnauthorized)
	assert.ErrorIs(t, Require(nil, "admin", CapAdmin), vaulterr.ErrUnauthorized)
}

func TestCapabilityNames(t *testing.T) {
	assert.Equal(t, "operator|approver", (CapOperator | CapApprover).String())
	assert.Equal(t, "none", Capability(0).String())

	c, ok := ParseCapability("liability_recovery")
	assert.True(t, ok)
	assert.Equal(t, CapLiabilityRecovery, c)

	_, ok = ParseCapability("root")
	assert.False(t, ok)
}

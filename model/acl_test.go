// model/acl_test.go
package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pulsecrm/acl/model"
)

func TestPermissionLevelCovers(t *testing.T) {
	assert.True(t, model.PermissionAdmin.Covers(model.PermissionRead))
	assert.True(t, model.PermissionAdmin.Covers(model.PermissionWrite))
	assert.True(t, model.PermissionAdmin.Covers(model.PermissionAdmin))
	assert.True(t, model.PermissionWrite.Covers(model.PermissionRead))
	assert.False(t, model.PermissionRead.Covers(model.PermissionWrite))
	assert.False(t, model.PermissionWrite.Covers(model.PermissionAdmin))
}

func TestPermissionLevelCoversUnknownLevels(t *testing.T) {
	assert.False(t, model.PermissionLevel("OWNER").Covers(model.PermissionRead))
	assert.False(t, model.PermissionAdmin.Covers(model.PermissionLevel("OWNER")))
}

func TestParsePermissionLevel(t *testing.T) {
	tests := []struct {
		raw   string
		want  model.PermissionLevel
		valid bool
	}{
		{"READ", model.PermissionRead, true},
		{"WRITE", model.PermissionWrite, true},
		{"ADMIN", model.PermissionAdmin, true},
		{"read", model.PermissionRead, true},
		{"admin", model.PermissionAdmin, true},
		{"OWNER", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, valid := model.ParsePermissionLevel(tt.raw)
		assert.Equal(t, tt.valid, valid, "raw=%q", tt.raw)
		if tt.valid {
			assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
		}
	}
}

func TestHighestPermission(t *testing.T) {
	assert.Equal(t, model.PermissionAdmin, model.HighestPermission([]model.PermissionLevel{
		model.PermissionRead, model.PermissionAdmin, model.PermissionWrite,
	}))
	assert.Equal(t, model.PermissionRead, model.HighestPermission([]model.PermissionLevel{model.PermissionRead}))
	assert.Equal(t, model.PermissionLevel(""), model.HighestPermission(nil))
}

func TestPrincipalKey(t *testing.T) {
	assert.Equal(t, "user:u1", model.Principal{UserID: "u1"}.Key())
	assert.Equal(t, "role:editors", model.Principal{RoleID: "editors"}.Key())
	assert.True(t, model.Principal{UserID: "u1"}.IsUser())
	assert.False(t, model.Principal{RoleID: "editors"}.IsUser())
}

func TestACLEntryCovers(t *testing.T) {
	entry := model.ACLEntry{
		Permissions: []model.PermissionLevel{model.PermissionRead, model.PermissionWrite},
	}
	assert.True(t, entry.Covers(model.PermissionRead))
	assert.True(t, entry.Covers(model.PermissionWrite))
	assert.False(t, entry.Covers(model.PermissionAdmin))
}

func TestACLEntryActive(t *testing.T) {
	entry := model.ACLEntry{Permissions: []model.PermissionLevel{model.PermissionRead}}
	assert.True(t, entry.Active())

	now := time.Now()
	entry.RevokedAt = &now
	assert.False(t, entry.Active())
}

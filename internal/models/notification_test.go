package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTargetUsersMatches(t *testing.T) {
	tests := []struct {
		name   string
		target TargetUsers
		user   string
		role   string
		want   bool
	}{
		{"all matches admin", TargetEveryone(), "u1", RoleAdmin, true},
		{"all matches unknown role", TargetEveryone(), "u1", "", true},
		{"admin scope matches admin", TargetRole(RoleAdmin), "u1", RoleAdmin, true},
		{"admin scope skips viewer", TargetRole(RoleAdmin), "u1", RoleViewer, false},
		{"viewer scope skips admin", TargetRole(RoleViewer), "u1", RoleAdmin, false},
		{"viewer scope matches viewer", TargetRole(RoleViewer), "u1", RoleViewer, true},
		{"list contains user", TargetIDs("u0", "u1"), "u1", RoleViewer, true},
		{"list ignores role", TargetIDs("u0"), "u1", RoleAdmin, false},
		{"empty list matches nobody", TargetIDs(), "u1", RoleAdmin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.Matches(tt.user, tt.role))
		})
	}
}

func TestTargetUsersJSON(t *testing.T) {
	raw, err := json.Marshal(TargetRole(RoleViewer))
	require.NoError(t, err)
	assert.JSONEq(t, `"role:viewer"`, string(raw))

	raw, err = json.Marshal(TargetIDs())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	var target TargetUsers
	require.NoError(t, json.Unmarshal([]byte(`["u1","u2"]`), &target))
	assert.Equal(t, TargetIDs("u1", "u2"), target)

	require.NoError(t, json.Unmarshal([]byte(`"all"`), &target))
	assert.Equal(t, TargetEveryone(), target)

	err = json.Unmarshal([]byte(`"role:owner"`), &target)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	err = json.Unmarshal([]byte(`42`), &target)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	err = json.Unmarshal([]byte(`["u1",""]`), &target)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
}

func TestTargetUsersBSON(t *testing.T) {
	type holder struct {
		Target TargetUsers `bson:"target_users"`
	}
	for _, target := range []TargetUsers{TargetEveryone(), TargetRole(RoleAdmin), TargetIDs("u1", "u2")} {
		raw, err := bson.Marshal(holder{Target: target})
		require.NoError(t, err)
		var out holder
		require.NoError(t, bson.Unmarshal(raw, &out))
		assert.Equal(t, target, out.Target)
	}

	raw, err := bson.Marshal(bson.M{"target_users": 7})
	require.NoError(t, err)
	var out holder
	assert.Error(t, bson.Unmarshal(raw, &out))
}

func TestNotificationTypeValid(t *testing.T) {
	assert.True(t, NotificationPaymentReminder.Valid())
	assert.True(t, NotificationSystem.Valid())
	assert.False(t, NotificationType("promo").Valid())
}

func TestLockableCollections(t *testing.T) {
	rec, ok := NewLockable("drivers")
	require.True(t, ok)
	assert.IsType(t, &Driver{}, rec)
	assert.Nil(t, rec.GetLock())

	assert.True(t, IsLockableCollection("transactions"))
	assert.False(t, IsLockableCollection("notifications"))
	_, ok = NewLockable("operators")
	assert.False(t, ok)
}

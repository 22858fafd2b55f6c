package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

type NotificationType string

const (
	NotificationPaymentReminder NotificationType = "payment_reminder"
	NotificationFeatureUpdate   NotificationType = "feature_update"
	NotificationAnnouncement    NotificationType = "announcement"
	NotificationSystem          NotificationType = "system"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationPaymentReminder, NotificationFeatureUpdate, NotificationAnnouncement, NotificationSystem:
		return true
	}
	return false
}

// Target scopes accepted in TargetUsers.
const (
	TargetAll        = "all"
	TargetRoleAdmin  = "role:admin"
	TargetRoleViewer = "role:viewer"
)

var ErrInvalidTarget = errors.New("invalid notification target")

// TargetUsers is either a scope ("all", "role:admin", "role:viewer") or an
// explicit list of operator ids. It is stored as a string or an array.
type TargetUsers struct {
	Scope   string
	UserIDs []string
}

func TargetEveryone() TargetUsers { return TargetUsers{Scope: TargetAll} }

func TargetRole(role string) TargetUsers { return TargetUsers{Scope: "role:" + role} }

func TargetIDs(ids ...string) TargetUsers {
	if ids == nil {
		ids = []string{}
	}
	return TargetUsers{UserIDs: ids}
}

// ParseTarget parses a scope string.
func ParseTarget(s string) (TargetUsers, error) {
	t := TargetUsers{Scope: strings.TrimSpace(s)}
	if err := t.Validate(); err != nil {
		return TargetUsers{}, err
	}
	return t, nil
}

// IsList reports whether t addresses an explicit set of operators.
func (t TargetUsers) IsList() bool { return t.Scope == "" }

func (t TargetUsers) Validate() error {
	switch t.Scope {
	case TargetAll, TargetRoleAdmin, TargetRoleViewer:
		if len(t.UserIDs) > 0 {
			return fmt.Errorf("%w: scope %q with user ids", ErrInvalidTarget, t.Scope)
		}
		return nil
	case "":
		for _, id := range t.UserIDs {
			if id == "" {
				return fmt.Errorf("%w: empty user id", ErrInvalidTarget)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidTarget, t.Scope)
}

// Matches is the targeting predicate. Role scopes are exclusive: an admin
// never matches "role:viewer" and vice versa.
func (t TargetUsers) Matches(userID, role string) bool {
	switch t.Scope {
	case TargetAll:
		return true
	case TargetRoleAdmin:
		return role == RoleAdmin
	case TargetRoleViewer:
		return role == RoleViewer
	case "":
		for _, id := range t.UserIDs {
			if id == userID {
				return true
			}
		}
	}
	return false
}

func (t TargetUsers) String() string {
	if t.IsList() {
		return strings.Join(t.UserIDs, ",")
	}
	return t.Scope
}

func (t TargetUsers) MarshalJSON() ([]byte, error) {
	if t.IsList() {
		return json.Marshal(t.listOrEmpty())
	}
	return json.Marshal(t.Scope)
}

func (t *TargetUsers) UnmarshalJSON(data []byte) error {
	var scope string
	if err := json.Unmarshal(data, &scope); err == nil {
		parsed, err := ParseTarget(scope)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("%w: expected a scope string or a list of ids", ErrInvalidTarget)
	}
	*t = TargetIDs(ids...)
	return t.Validate()
}

func (t TargetUsers) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if t.IsList() {
		return bson.MarshalValue(t.listOrEmpty())
	}
	return bson.MarshalValue(t.Scope)
}

func (t *TargetUsers) UnmarshalBSONValue(typ bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: typ, Value: data}
	switch typ {
	case bsontype.String:
		*t = TargetUsers{Scope: raw.StringValue()}
		return nil
	case bsontype.Array:
		var ids []string
		if err := raw.Unmarshal(&ids); err != nil {
			return fmt.Errorf("decode target users: %w", err)
		}
		*t = TargetIDs(ids...)
		return nil
	}
	return fmt.Errorf("%w: unexpected bson type %s", ErrInvalidTarget, typ)
}

func (t TargetUsers) listOrEmpty() []string {
	if t.UserIDs == nil {
		return []string{}
	}
	return t.UserIDs
}

// DeliveryTracking holds advisory aggregate counters. Per-user state lives in
// the read and delete overlay collections.
type DeliveryTracking struct {
	Sent      int64    `bson:"sent" json:"sent"`
	Delivered []string `bson:"delivered" json:"delivered"`
	Read      []string `bson:"read" json:"read"`
}

// Notification is a broadcast message. Only DeliveryTracking changes after
// creation. Timestamps are epoch milliseconds.
type Notification struct {
	ID               string           `bson:"_id,omitempty" json:"id"`
	Title            string           `bson:"title" json:"title"`
	Message          string           `bson:"message" json:"message"`
	Type             NotificationType `bson:"type" json:"type"`
	Category         string           `bson:"category" json:"category"`
	Priority         string           `bson:"priority" json:"priority"`
	TargetUsers      TargetUsers      `bson:"target_users" json:"target_users"`
	CreatedBy        string           `bson:"created_by" json:"created_by"`
	CreatedByName    string           `bson:"created_by_name" json:"created_by_name"`
	CreatedAt        int64            `bson:"created_at" json:"created_at"`
	ExpiresAt        int64            `bson:"expires_at" json:"expires_at"`
	DeliveryTracking DeliveryTracking `bson:"delivery_tracking" json:"delivery_tracking"`
	MinAccountAge    *int64           `bson:"min_account_age,omitempty" json:"min_account_age,omitempty"`
}

// NotificationSpec is the sender's request to broadcast a notification.
// ExpiresIn is in milliseconds and defaults to 24 hours.
type NotificationSpec struct {
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	Type          NotificationType `json:"type"`
	Category      string           `json:"category"`
	Priority      string           `json:"priority"`
	TargetUsers   TargetUsers      `json:"target_users"`
	ExpiresIn     *int64           `json:"expires_in,omitempty"`
	MinAccountAge *int64           `json:"min_account_age,omitempty"`
}

// UserNotificationRead records that a user has read a notification.
type UserNotificationRead struct {
	ID             string `bson:"_id,omitempty" json:"id"`
	NotificationID string `bson:"notification_id" json:"notification_id"`
	UserID         string `bson:"user_id" json:"user_id"`
	ReadAt         int64  `bson:"read_at" json:"read_at"`
}

// UserNotificationDelete hides a notification from one user without touching
// the shared notification document.
type UserNotificationDelete struct {
	ID             string `bson:"_id,omitempty" json:"id"`
	NotificationID string `bson:"notification_id" json:"notification_id"`
	UserID         string `bson:"user_id" json:"user_id"`
	DeletedAt      int64  `bson:"deleted_at" json:"deleted_at"`
}

package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fleetdesk/console/internal/models"
	"github.com/fleetdesk/console/internal/store"
	"github.com/fleetdesk/console/pkg/logger"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	notificationsCollection = "notifications"
	readsCollection         = "user_notification_reads"
	deletesCollection       = "user_notification_deletes"

	// DefaultExpiresIn is applied when a notification request has no expiry.
	DefaultExpiresIn = int64(24 * time.Hour / time.Millisecond)

	// DefaultRelayTimeout bounds each post-send relay.
	DefaultRelayTimeout = 15 * time.Second
)

// Viewer identifies the operator a notification view is computed for.
// CreatedAt is carried for account-age rules; targeting does not use it.
type Viewer struct {
	UserID    string
	Role      string
	CreatedAt time.Time
}

// NotificationView is one computed state of a viewer's notification center.
type NotificationView struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	ReadIDs       map[string]bool       `json:"read_ids"`
}

// NotificationCallback receives every recomputed view of a subscription,
// ordered by expiry, latest first.
type NotificationCallback func(notifications []models.Notification, unreadCount int, readIDs map[string]bool)

// Relay forwards a freshly sent notification to an outside channel.
type Relay interface {
	Name() string
	Relay(ctx context.Context, n models.Notification) error
}

// NotificationService routes broadcast notifications and keeps the per-user
// read and delete overlays. Broadcast documents are never modified by a
// user action except for the advisory delivery_tracking.read list.
type NotificationService struct {
	store  store.DocumentStore
	clock  clockwork.Clock
	relays []Relay

	relayTimeout time.Duration
	relaying     sync.WaitGroup
}

// NewNotificationService creates a new instance of NotificationService.
func NewNotificationService(st store.DocumentStore, clock clockwork.Clock, relays ...Relay) *NotificationService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &NotificationService{store: st, clock: clock, relays: relays, relayTimeout: DefaultRelayTimeout}
}

// WithRelayTimeout overrides DefaultRelayTimeout.
func (s *NotificationService) WithRelayTimeout(d time.Duration) *NotificationService {
	s.relayTimeout = d
	return s
}

// WaitRelays blocks until every relay started by Send has finished.
func (s *NotificationService) WaitRelays() {
	s.relaying.Wait()
}

func (s *NotificationService) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

// Send stores a new broadcast notification and returns its id.
func (s *NotificationService) Send(ctx context.Context, spec models.NotificationSpec, createdBy, createdByName string) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	expiresIn := DefaultExpiresIn
	if spec.ExpiresIn != nil {
		expiresIn = *spec.ExpiresIn
	}
	createdAt := s.nowMillis()
	n := models.Notification{
		Title:         spec.Title,
		Message:       spec.Message,
		Type:          spec.Type,
		Category:      spec.Category,
		Priority:      spec.Priority,
		TargetUsers:   spec.TargetUsers,
		CreatedBy:     createdBy,
		CreatedByName: createdByName,
		CreatedAt:     createdAt,
		ExpiresAt:     createdAt + expiresIn,
		DeliveryTracking: models.DeliveryTracking{
			Sent:      createdAt,
			Delivered: []string{},
			Read:      []string{},
		},
		// Left nil when absent; the omitempty tag keeps it out of the document.
		MinAccountAge: spec.MinAccountAge,
	}

	data, err := store.Encode(n)
	if err != nil {
		return "", err
	}
	id, err := s.store.InsertDocument(ctx, notificationsCollection, data)
	if err != nil {
		logger.Log.WithError(err).WithField("created_by", createdBy).Error("Failed to send notification")
		return "", fmt.Errorf("failed to send notification: %w", err)
	}
	n.ID = id

	logger.Log.WithFields(logrus.Fields{
		"notification_id": id,
		"type":            n.Type,
		"target":          n.TargetUsers.String(),
		"expires_at":      n.ExpiresAt,
	}).Info("Notification sent")

	s.relay(n)
	return id, nil
}

// relay hands n to every relay in the background. Each relay gets its own
// deadline, detached from the request that sent n.
func (s *NotificationService) relay(n models.Notification) {
	for _, r := range s.relays {
		s.relaying.Add(1)
		go func(r Relay) {
			defer s.relaying.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.relayTimeout)
			defer cancel()
			if err := r.Relay(ctx, n); err != nil {
				logger.Log.WithError(err).WithFields(logrus.Fields{
					"notification_id": n.ID,
					"relay":           r.Name(),
				}).Warn("Failed to relay notification")
			}
		}(r)
	}
}

func validateSpec(spec models.NotificationSpec) error {
	if strings.TrimSpace(spec.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidNotification)
	}
	if !spec.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, spec.Type)
	}
	if err := spec.TargetUsers.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidNotification, err)
	}
	if spec.TargetUsers.IsList() && len(spec.TargetUsers.UserIDs) == 0 {
		return fmt.Errorf("%w: %w: no recipients", ErrInvalidNotification, models.ErrInvalidTarget)
	}
	if spec.ExpiresIn != nil && *spec.ExpiresIn <= 0 {
		return fmt.Errorf("%w: expires_in must be positive", ErrInvalidNotification)
	}
	return nil
}

func (s *NotificationService) liveQuery(now int64) store.Query {
	return store.Query{
		Collection: notificationsCollection,
		Where:      []store.Condition{store.Where("expires_at", store.OpGt, now)},
		OrderBy:    "expires_at",
		Desc:       true,
	}
}

// Subscribe opens a live view of the viewer's notification center. fn runs
// once with the current state and again after every change to the
// unexpired notifications. Call the returned function to stop.
func (s *NotificationService) Subscribe(ctx context.Context, viewer Viewer, fn NotificationCallback) (func(), error) {
	log := logger.Log.WithField("user_id", viewer.UserID)

	unsubscribe, err := s.store.Subscribe(ctx, s.liveQuery(s.nowMillis()), func(docs []store.Document, err error) {
		if err != nil {
			log.WithError(err).Error("Notification subscription failed")
			return
		}
		view, err := s.buildView(ctx, docs, viewer)
		if err != nil {
			log.WithError(err).Error("Failed to compute notification view")
			return
		}
		fn(view.Notifications, view.UnreadCount, view.ReadIDs)
	})
	if err != nil {
		log.WithError(err).Error("Failed to subscribe to notifications")
		return nil, err
	}
	return unsubscribe, nil
}

// Snapshot computes the viewer's current notification center once.
func (s *NotificationService) Snapshot(ctx context.Context, viewer Viewer) (*NotificationView, error) {
	docs, err := s.store.Query(ctx, s.liveQuery(s.nowMillis()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	return s.buildView(ctx, docs, viewer)
}

// buildView applies expiry, targeting and the viewer's delete overlay to
// docs, then counts what has no read marker. docs keep their order.
func (s *NotificationService) buildView(ctx context.Context, docs []store.Document, viewer Viewer) (*NotificationView, error) {
	now := s.nowMillis()
	targeted := make([]models.Notification, 0, len(docs))
	for _, doc := range docs {
		var n models.Notification
		if err := store.Decode(doc, &n); err != nil {
			return nil, err
		}
		if n.ExpiresAt > now && n.TargetUsers.Matches(viewer.UserID, viewer.Role) {
			targeted = append(targeted, n)
		}
	}

	readIDs, err := s.overlayIDs(ctx, readsCollection, viewer.UserID)
	if err != nil {
		return nil, err
	}
	deletedIDs, err := s.overlayIDs(ctx, deletesCollection, viewer.UserID)
	if err != nil {
		return nil, err
	}

	view := &NotificationView{
		Notifications: make([]models.Notification, 0, len(targeted)),
		ReadIDs:       readIDs,
	}
	for _, n := range targeted {
		if deletedIDs[n.ID] {
			continue
		}
		view.Notifications = append(view.Notifications, n)
		if !readIDs[n.ID] {
			view.UnreadCount++
		}
	}
	return view, nil
}

// overlayIDs returns the notification ids that carry a marker row for userID.
func (s *NotificationService) overlayIDs(ctx context.Context, collection, userID string) (map[string]bool, error) {
	docs, err := s.store.Query(ctx, store.Query{
		Collection: collection,
		Where:      []store.Condition{store.Where("user_id", store.OpEq, userID)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}
	ids := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if id, ok := doc.Data["notification_id"].(string); ok {
			ids[id] = true
		}
	}
	return ids, nil
}

// MarkAsRead records a read marker for the pair if none exists and adds
// userID to the notification's advisory read list.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID string) error {
	existing, err := s.store.Query(ctx, store.Query{
		Collection: readsCollection,
		Where: []store.Condition{
			store.Where("notification_id", store.OpEq, notificationID),
			store.Where("user_id", store.OpEq, userID),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to check read marker: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	data, err := store.Encode(models.UserNotificationRead{
		NotificationID: notificationID,
		UserID:         userID,
		ReadAt:         s.nowMillis(),
	})
	if err != nil {
		return err
	}
	if _, err := s.store.InsertDocument(ctx, readsCollection, data); err != nil {
		return fmt.Errorf("failed to mark notification as read: %w", err)
	}
	if err := s.store.UpdateDocument(ctx, notificationsCollection, notificationID,
		store.ArrayUnion("delivery_tracking.read", userID)); err != nil {
		return fmt.Errorf("failed to update delivery tracking: %w", err)
	}
	return nil
}

// MarkAllAsRead inserts the missing read markers for ids in one batch. Unlike
// MarkAsRead it leaves delivery_tracking.read untouched.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, notificationIDs []string, userID string) error {
	readIDs, err := s.overlayIDs(ctx, readsCollection, userID)
	if err != nil {
		return err
	}

	now := s.nowMillis()
	var ops []store.WriteOp
	for _, id := range notificationIDs {
		if readIDs[id] {
			continue
		}
		readIDs[id] = true
		data, err := store.Encode(models.UserNotificationRead{NotificationID: id, UserID: userID, ReadAt: now})
		if err != nil {
			return err
		}
		ops = append(ops, store.InsertOp(readsCollection, "", data))
	}
	if len(ops) == 0 {
		return nil
	}
	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"user_id": userID, "count": len(ops)}).Info("Notifications marked as read")
	return nil
}

// DeleteForUser hides a notification from userID only.
func (s *NotificationService) DeleteForUser(ctx context.Context, notificationID, userID string) error {
	data, err := store.Encode(models.UserNotificationDelete{
		NotificationID: notificationID,
		UserID:         userID,
		DeletedAt:      s.nowMillis(),
	})
	if err != nil {
		return err
	}
	if _, err := s.store.InsertDocument(ctx, deletesCollection, data); err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return nil
}

// ClearAllRead hides every notification userID has read and not yet deleted.
func (s *NotificationService) ClearAllRead(ctx context.Context, userID string) error {
	readIDs, err := s.overlayIDs(ctx, readsCollection, userID)
	if err != nil {
		return err
	}
	deletedIDs, err := s.overlayIDs(ctx, deletesCollection, userID)
	if err != nil {
		return err
	}

	now := s.nowMillis()
	var ops []store.WriteOp
	for id := range readIDs {
		if deletedIDs[id] {
			continue
		}
		data, err := store.Encode(models.UserNotificationDelete{NotificationID: id, UserID: userID, DeletedAt: now})
		if err != nil {
			return err
		}
		ops = append(ops, store.InsertOp(deletesCollection, "", data))
	}
	if len(ops) == 0 {
		return nil
	}
	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return fmt.Errorf("failed to clear read notifications: %w", err)
	}
	logger.Log.WithFields(logrus.Fields{"user_id": userID, "count": len(ops)}).Info("Read notifications cleared")
	return nil
}

// CleanupExpired deletes every notification with expires_at <= now and
// returns how many were removed. Read and delete markers of the removed
// notifications are left in place.
func (s *NotificationService) CleanupExpired(ctx context.Context) (int, error) {
	docs, err := s.store.Query(ctx, store.Query{
		Collection: notificationsCollection,
		Where:      []store.Condition{store.Where("expires_at", store.OpLte, s.nowMillis())},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch expired notifications: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	ops := make([]store.WriteOp, 0, len(docs))
	for _, doc := range docs {
		ops = append(ops, store.DeleteOp(notificationsCollection, doc.ID))
	}
	if err := s.store.BatchWrite(ctx, ops); err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	logger.Log.Infof("Deleted %d expired notifications", len(docs))
	return len(docs), nil
}

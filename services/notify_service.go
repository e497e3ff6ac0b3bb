package services

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/models"
	"github.com/emberlabs/emberhub/realtime"
)

// NotifyService persists notifications and fans them out to the realtime
// hub and web push. The database row is the source of truth; both
// transports are best-effort.
type NotifyService struct {
	db   *gorm.DB
	hub  *realtime.Hub
	push *PushSender
	log  *zap.SugaredLogger
}

// NewNotifyService wires the fan-out pipeline. hub and push may be nil in
// tests; delivery is skipped for missing transports.
func NewNotifyService(db *gorm.DB, hub *realtime.Hub, push *PushSender, log *zap.SugaredLogger) *NotifyService {
	return &NotifyService{db: db, hub: hub, push: push, log: log}
}

func pushTitleFor(notifType string) string {
	switch notifType {
	case models.NotificationComment:
		return "New comment"
	case models.NotificationFollow:
		return "New follower"
	case models.NotificationReward:
		return "Reward"
	default:
		return "New notification"
	}
}

// Notify creates a notification row for recipientID and delivers it. Never
// notifies a user about their own action.
func (n *NotifyService) Notify(recipientID, senderID uint, notifType, message string, postID *uint) (*models.Notification, error) {
	if recipientID == senderID {
		return nil, nil
	}

	notif := models.Notification{
		UserID:   recipientID,
		SenderID: senderID,
		Type:     notifType,
		Message:  message,
		PostID:   postID,
	}
	if err := n.db.Create(&notif).Error; err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	_ = n.db.Preload("Sender").First(&notif, notif.ID).Error

	if n.hub != nil {
		n.hub.SendToUser(recipientID, realtime.Event{Type: "notification", Payload: notif})
	}

	if n.push != nil {
		// Off the request path; push latency must not block the API.
		go func() {
			data := map[string]string{"type": notifType}
			if postID != nil {
				data["post_id"] = fmt.Sprintf("%d", *postID)
			}
			if _, err := n.push.SendToUser(recipientID, pushTitleFor(notifType), message, data); err != nil && n.log != nil {
				n.log.Warnw("push fan-out failed", "user_id", recipientID, "err", err)
			}
		}()
	}

	return &notif, nil
}

// ListForUser returns a page of the user's notifications, newest first,
// plus the unread count.
func (n *NotifyService) ListForUser(userID uint, page, pageSize int) ([]models.Notification, int64, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var items []models.Notification
	var total, unread int64

	q := n.db.Model(&models.Notification{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}
	if err := n.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&unread).Error; err != nil {
		return nil, 0, 0, err
	}
	if err := n.db.Where("user_id = ?", userID).
		Preload("Sender").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error; err != nil {
		return nil, 0, 0, err
	}
	return items, total, unread, nil
}

// MarkRead flags one notification read; only the recipient can do so.
func (n *NotifyService) MarkRead(userID, notifID uint) error {
	res := n.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notifID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification of the user read.
func (n *NotifyService) MarkAllRead(userID uint) (int64, error) {
	res := n.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

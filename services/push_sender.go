package services

import (
	"encoding/json"
	"errors"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emberlabs/emberhub/config"
	"github.com/emberlabs/emberhub/models"
)

// PushSender delivers web-push messages to a user's registered
// subscriptions using the configured VAPID key pair.
type PushSender struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

// NewPushSender creates a sender; it is inert when VAPID keys are not
// configured.
func NewPushSender(db *gorm.DB, log *zap.SugaredLogger) *PushSender {
	return &PushSender{db: db, log: log}
}

// PushReport summarizes one fan-out.
type PushReport struct {
	Targeted int `json:"targeted"`
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
}

// SendToUser pushes a payload to every enabled subscription of one user.
// Subscriptions rejected with 404/410 are deleted; other failures are
// logged and kept.
func (p *PushSender) SendToUser(userID uint, title, body string, data map[string]string) (*PushReport, error) {
	cfg := config.Get()
	if cfg.VAPIDPrivateKey == "" || cfg.VAPIDPublicKey == "" {
		return &PushReport{}, nil
	}

	var subs []models.PushSubscription
	if err := p.db.Where("user_id = ? AND disabled = ?", userID, false).Find(&subs).Error; err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return &PushReport{}, nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title": title,
		"body":  body,
		"data":  data,
	})
	if err != nil {
		return nil, err
	}

	report := &PushReport{Targeted: len(subs)}
	for _, sub := range subs {
		target := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}
		resp, err := webpush.SendNotification(payload, target, &webpush.Options{
			Subscriber:      cfg.VAPIDSubject,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             60,
		})
		if err != nil {
			report.Failed++
			if p.log != nil {
				p.log.Warnw("web push failed", "user_id", userID, "endpoint", sub.Endpoint, "err", err)
			}
			continue
		}
		status := resp.StatusCode
		_ = resp.Body.Close()

		if status == http.StatusNotFound || status == http.StatusGone {
			// Browser dropped the subscription; prune it.
			_ = p.db.Delete(&models.PushSubscription{}, sub.ID).Error
			report.Failed++
			continue
		}
		if status >= 400 {
			report.Failed++
			continue
		}
		report.Sent++
	}
	return report, nil
}

// ErrSubscriptionNotOwned is returned when disabling a subscription that
// belongs to another user.
var ErrSubscriptionNotOwned = errors.New("subscription not owned by user")

// UpsertSubscription registers a subscription for a user. A known endpoint
// is reassigned to the current user and re-enabled, which covers re-login
// on a shared device.
func (p *PushSender) UpsertSubscription(userID uint, sub models.PushSubscription) (*models.PushSubscription, error) {
	var existing models.PushSubscription
	err := p.db.Where("endpoint = ?", sub.Endpoint).First(&existing).Error
	if err == nil {
		existing.UserID = userID
		existing.P256dh = sub.P256dh
		existing.Auth = sub.Auth
		existing.Platform = sub.Platform
		existing.DeviceID = sub.DeviceID
		existing.AppVersion = sub.AppVersion
		existing.Disabled = false
		if err := p.db.Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sub.UserID = userID
	sub.Disabled = false
	if err := p.db.Create(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// DisableSubscription marks a subscription disabled, only when owned by the
// caller.
func (p *PushSender) DisableSubscription(userID uint, endpoint string) error {
	var existing models.PushSubscription
	if err := p.db.Where("endpoint = ?", endpoint).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return gorm.ErrRecordNotFound
		}
		return err
	}
	if existing.UserID != userID {
		return ErrSubscriptionNotOwned
	}
	return p.db.Model(&existing).Update("disabled", true).Error
}

// ListSubscriptions returns the user's enabled subscriptions.
func (p *PushSender) ListSubscriptions(userID uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := p.db.Where("user_id = ? AND disabled = ?", userID, false).Find(&subs).Error
	return subs, err
}

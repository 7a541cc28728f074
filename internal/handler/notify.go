package handler

import (
	"context"
	"strconv"

	"gamehub/backend/internal/container"
	"gamehub/backend/internal/database"
	"gamehub/backend/internal/models"
)

// notifier queues realtime notifications from the package-level handlers.
// Wired at startup; nil leaves the handlers silent.
var notifier *container.Service

// UseNotifier injects the notification sink for relation events.
func UseNotifier(svc *container.Service) {
	notifier = svc
}

func notifyRelation(ctx context.Context, targetID, fromID uint, kind models.NotificationKind) {
	if notifier == nil {
		return
	}
	payload := map[string]string{
		"from_user_id": strconv.FormatUint(uint64(fromID), 10),
	}
	var from models.User
	if err := database.DB.First(&from, fromID).Error; err == nil {
		payload["nickname"] = from.Nickname
	}
	notifier.Notify(ctx, targetID, kind, payload)
}

package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gamehub/backend/internal/bus"
	"gamehub/backend/internal/container"
	"gamehub/backend/internal/database"
	"gamehub/backend/internal/hub"
	"gamehub/backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGatewayFixture(t *testing.T) (*GatewayBackend, *container.Service, *bus.MemoryBus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	database.DB = db

	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })
	svc := container.NewService(db, nil, b)
	return NewGatewayBackend(svc), svc, b
}

func newGatewayUser(t *testing.T, nickname string) uint {
	t.Helper()
	u := models.User{Nickname: nickname, Email: nickname + "@example.com", PasswordHash: "x"}
	if err := database.DB.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func TestAuthorizeTopic(t *testing.T) {
	backend, svc, _ := newGatewayFixture(t)
	member := newGatewayUser(t, "member")
	outsider := newGatewayUser(t, "outsider")

	c, err := svc.CreateContainer(context.Background(), member, models.KindLobby, container.CreateAttrs{
		Title: "ranked", MaxMembers: 4,
	})
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	cases := []struct {
		name   string
		userID uint
		topic  string
		ok     bool
	}{
		{"global lobbies", outsider, "lobbies", true},
		{"global parties", outsider, "parties", true},
		{"global groups", outsider, "groups", true},
		{"member on own lobby", member, container.Topic(models.KindLobby, c.ID), true},
		{"outsider on lobby", outsider, container.Topic(models.KindLobby, c.ID), false},
		{"own user topic", member, container.UserTopic(member), true},
		{"someone else's user topic", member, container.UserTopic(outsider), false},
		{"unknown topic", member, "weird:topic", false},
		{"malformed id", member, "lobby:abc", false},
	}
	for _, tc := range cases {
		err := backend.AuthorizeTopic(tc.userID, tc.topic)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected rejection", tc.name)
		}
	}
}

func TestSnapshotEvents(t *testing.T) {
	backend, svc, _ := newGatewayFixture(t)
	member := newGatewayUser(t, "member")

	c, err := svc.CreateContainer(context.Background(), member, models.KindLobby, container.CreateAttrs{
		Title: "ranked", MaxMembers: 4,
	})
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	events := backend.SnapshotEvents(member, container.Topic(models.KindLobby, c.ID))
	if len(events) != 1 || events[0].Type != container.EventUpdated {
		t.Fatalf("expected one updated event, got %+v", events)
	}

	// Global topics carry no snapshot.
	if events := backend.SnapshotEvents(member, "lobbies"); events != nil {
		t.Fatalf("expected no snapshot for global topic, got %+v", events)
	}

	// User topics replay queued notifications once.
	svc.Notify(context.Background(), member, models.NotificationFriendRequest, map[string]string{"from": "2"})
	queued := backend.SnapshotEvents(member, container.UserTopic(member))
	if len(queued) != 1 || queued[0].Type != container.EventNotification {
		t.Fatalf("expected one notification event, got %+v", queued)
	}
	if again := backend.SnapshotEvents(member, container.UserTopic(member)); len(again) != 0 {
		t.Fatalf("notifications replayed twice: %+v", again)
	}
}

func waitClientFrame(t *testing.T, c *hub.Client) bus.Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev bus.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return bus.Event{}
}

func TestIdenticalUpdatesDeliverOnce(t *testing.T) {
	backend, svc, eventBus := newGatewayFixture(t)
	member := newGatewayUser(t, "member")

	c, err := svc.CreateContainer(context.Background(), member, models.KindLobby, container.CreateAttrs{
		Title: "ranked", MaxMembers: 4,
	})
	if err != nil {
		t.Fatalf("create lobby: %v", err)
	}

	gateway := hub.NewHub(eventBus, backend)
	client := hub.NewClient(gateway, nil, member)
	topic := container.Topic(models.KindLobby, c.ID)
	if err := gateway.JoinTopic(client, topic); err != nil {
		t.Fatalf("join: %v", err)
	}
	if snap := waitClientFrame(t, client); snap.Type != container.EventUpdated {
		t.Fatalf("expected snapshot push, got %+v", snap)
	}

	title := "renamed"
	attrs := container.UpdateAttrs{Title: &title}
	if _, err := svc.Update(context.Background(), member, c.ID, attrs); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if got := waitClientFrame(t, client); got.Type != container.EventUpdated {
		t.Fatalf("expected updated frame, got %+v", got)
	}

	// The second update leaves the container in the same state; its
	// projection serializes identically and the push is suppressed.
	if _, err := svc.Update(context.Background(), member, c.ID, attrs); err != nil {
		t.Fatalf("second update: %v", err)
	}
	select {
	case data := <-client.Send:
		t.Fatalf("identical update delivered twice: %s", data)
	case <-time.After(200 * time.Millisecond):
	}
}

package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gamehub/backend/internal/bus"
	"gamehub/backend/internal/database"
	"gamehub/backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	// A fresh connection gets a fresh in-memory database, so the pool must
	// stay at one connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap database: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, hooks *Hooks) (*Service, *bus.MemoryBus) {
	t.Helper()
	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })
	return NewService(newTestDB(t), hooks, b), b
}

func createUser(t *testing.T, svc *Service, nickname string) uint {
	t.Helper()
	u := models.User{
		Nickname:     nickname,
		Email:        nickname + "@example.com",
		PasswordHash: "x",
	}
	if err := svc.db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", nickname, err)
	}
	return u.ID
}

func mustCreate(t *testing.T, svc *Service, actorID uint, kind models.ContainerKind, attrs CreateAttrs) *models.Container {
	t.Helper()
	c, err := svc.CreateContainer(context.Background(), actorID, kind, attrs)
	if err != nil {
		t.Fatalf("create %s: %v", kind, err)
	}
	return c
}

func mustJoin(t *testing.T, svc *Service, userID, containerID uint) {
	t.Helper()
	if _, err := svc.Join(context.Background(), userID, containerID, ""); err != nil {
		t.Fatalf("user %d join container %d: %v", userID, containerID, err)
	}
}

func waitEvent(t *testing.T, sub bus.Subscription, eventType string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C():
			if !ok {
				t.Fatalf("subscription closed while waiting for %q", eventType)
			}
			if ev.Type == eventType {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", eventType)
		}
	}
}

func TestCreateLobbyMakesCreatorHost(t *testing.T) {
	svc, _ := newTestService(t, nil)
	host := createUser(t, svc, "host")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})

	if c.HostID == nil || *c.HostID != host {
		t.Fatalf("expected host %d, got %v", host, c.HostID)
	}
	if c.MemberCount != 1 {
		t.Fatalf("expected member count 1, got %d", c.MemberCount)
	}
	if len(c.Memberships) != 1 || c.Memberships[0].Role != models.RoleHost {
		t.Fatalf("expected a single host membership, got %+v", c.Memberships)
	}

	var u models.User
	if err := svc.db.First(&u, host).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if u.CurrentLobbyID == nil || *u.CurrentLobbyID != c.ID {
		t.Fatalf("expected current_lobby_id %d, got %v", c.ID, u.CurrentLobbyID)
	}
}

func TestCreateGroupMakesCreatorAdmin(t *testing.T) {
	svc, _ := newTestService(t, nil)
	admin := createUser(t, svc, "admin")

	c := mustCreate(t, svc, admin, models.KindGroup, CreateAttrs{Title: "clan", MaxMembers: 20})

	if c.HostID != nil {
		t.Fatalf("groups must not track a host, got %v", c.HostID)
	}
	if len(c.Memberships) != 1 || c.Memberships[0].Role != models.RoleAdmin {
		t.Fatalf("expected a single admin membership, got %+v", c.Memberships)
	}
	if c.GroupType != models.GroupPublic {
		t.Fatalf("expected default group type public, got %q", c.GroupType)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	actor := createUser(t, svc, "actor")

	cases := []struct {
		name  string
		kind  models.ContainerKind
		attrs CreateAttrs
	}{
		{"empty title", models.KindLobby, CreateAttrs{Title: "  ", MaxMembers: 4}},
		{"zero capacity", models.KindLobby, CreateAttrs{Title: "a", MaxMembers: 0}},
		{"hostless party", models.KindParty, CreateAttrs{Title: "a", MaxMembers: 4, Hostless: true}},
		{"type on lobby", models.KindLobby, CreateAttrs{Title: "a", MaxMembers: 4, GroupType: models.GroupPublic}},
		{"unknown group type", models.KindGroup, CreateAttrs{Title: "a", MaxMembers: 4, GroupType: "secret"}},
	}
	for _, tc := range cases {
		if _, err := svc.CreateContainer(context.Background(), actor, tc.kind, tc.attrs); !errors.Is(err, ErrInvalidAttrs) {
			t.Errorf("%s: expected ErrInvalidAttrs, got %v", tc.name, err)
		}
	}
}

func TestJoinRespectsCapacityUnderContention(t *testing.T) {
	svc, _ := newTestService(t, nil)
	host := createUser(t, svc, "host")
	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 3})

	const joiners = 6
	ids := make([]uint, joiners)
	for i := range ids {
		ids[i] = createUser(t, svc, fmt.Sprintf("joiner%d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, errs[i] = svc.Join(context.Background(), id, c.ID, "")
		}(i, id)
	}
	wg.Wait()

	joined, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			joined++
		case errors.Is(err, ErrFull):
			full++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if joined != 2 || full != 4 {
		t.Fatalf("expected 2 joins and 4 rejections, got %d/%d", joined, full)
	}

	final, err := svc.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload container: %v", err)
	}
	if final.MemberCount != 3 || len(final.Memberships) != 3 {
		t.Fatalf("expected exactly 3 members, got count=%d memberships=%d", final.MemberCount, len(final.Memberships))
	}
}

func TestExclusiveOccupancy(t *testing.T) {
	svc, _ := newTestService(t, nil)
	host := createUser(t, svc, "host")
	other := createUser(t, svc, "other")

	lobby := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "one", MaxMembers: 4})
	second := mustCreate(t, svc, other, models.KindLobby, CreateAttrs{Title: "two", MaxMembers: 4})

	if _, err := svc.Join(context.Background(), host, second.ID, ""); !errors.Is(err, ErrAlreadyInLobby) {
		t.Fatalf("expected ErrAlreadyInLobby, got %v", err)
	}
	if _, err := svc.CreateContainer(context.Background(), host, models.KindLobby, CreateAttrs{Title: "three", MaxMembers: 4}); !errors.Is(err, ErrAlreadyInLobby) {
		t.Fatalf("expected ErrAlreadyInLobby on create, got %v", err)
	}

	// A lobby seat does not block party membership.
	if _, err := svc.CreateContainer(context.Background(), host, models.KindParty, CreateAttrs{Title: "party", MaxMembers: 4}); err != nil {
		t.Fatalf("party create while in lobby: %v", err)
	}

	// Leaving frees the seat.
	if err := svc.Leave(context.Background(), host, lobby.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	mustJoin(t, svc, host, second.ID)
}

func TestHostSuccessionFollowsJoinOrder(t *testing.T) {
	svc, _ := newTestService(t, nil)
	h := createUser(t, svc, "h")
	a := createUser(t, svc, "a")
	b := createUser(t, svc, "b")

	c := mustCreate(t, svc, h, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})
	mustJoin(t, svc, a, c.ID)
	mustJoin(t, svc, b, c.ID)

	if err := svc.Leave(context.Background(), h, c.ID); err != nil {
		t.Fatalf("host leave: %v", err)
	}
	cur, err := svc.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cur.HostID == nil || *cur.HostID != a {
		t.Fatalf("expected host %d after first departure, got %v", a, cur.HostID)
	}

	if err := svc.Leave(context.Background(), a, c.ID); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	cur, err = svc.Get(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cur.HostID == nil || *cur.HostID != b {
		t.Fatalf("expected host %d after second departure, got %v", b, cur.HostID)
	}

	// Last member out dissolves the lobby.
	if err := svc.Leave(context.Background(), b, c.ID); err != nil {
		t.Fatalf("final leave: %v", err)
	}
	if _, err := svc.Get(context.Background(), c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after dissolution, got %v", err)
	}
}

func TestGroupPersistsWhenEmpty(t *testing.T) {
	svc, _ := newTestService(t, nil)
	admin := createUser(t, svc, "admin")

	g := mustCreate(t, svc, admin, models.KindGroup, CreateAttrs{Title: "clan", MaxMembers: 10})
	if err := svc.Leave(context.Background(), admin, g.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}

	cur, err := svc.Get(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("expected group to persist, got %v", err)
	}
	if cur.MemberCount != 0 {
		t.Fatalf("expected empty group, got %d members", cur.MemberCount)
	}

	// Rejoining an empty group grants the admin role again.
	rejoined, err := svc.Join(context.Background(), admin, g.ID, "")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(rejoined.Memberships) != 1 || rejoined.Memberships[0].Role != models.RoleAdmin {
		t.Fatalf("expected rejoining member to become admin, got %+v", rejoined.Memberships)
	}
}

func TestAdminSuccessionInGroups(t *testing.T) {
	svc, _ := newTestService(t, nil)
	admin := createUser(t, svc, "admin")
	member := createUser(t, svc, "member")

	g := mustCreate(t, svc, admin, models.KindGroup, CreateAttrs{Title: "clan", MaxMembers: 10})
	mustJoin(t, svc, member, g.ID)

	if err := svc.Leave(context.Background(), admin, g.ID); err != nil {
		t.Fatalf("admin leave: %v", err)
	}

	var m models.Membership
	if err := svc.db.Where("container_id = ? AND user_id = ?", g.ID, member).First(&m).Error; err != nil {
		t.Fatalf("reload membership: %v", err)
	}
	if m.Role != models.RoleAdmin {
		t.Fatalf("expected remaining member to inherit admin, got %q", m.Role)
	}
}

func TestKickRules(t *testing.T) {
	svc, _ := newTestService(t, nil)
	host := createUser(t, svc, "host")
	member := createUser(t, svc, "member")
	stranger := createUser(t, svc, "stranger")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})
	mustJoin(t, svc, member, c.ID)

	if err := svc.Kick(context.Background(), member, c.ID, host); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost for non-host kicker, got %v", err)
	}
	if err := svc.Kick(context.Background(), host, c.ID, host); !errors.Is(err, ErrCannotKickSelf) {
		t.Fatalf("expected ErrCannotKickSelf, got %v", err)
	}
	if err := svc.Kick(context.Background(), host, c.ID, stranger); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember for non-member target, got %v", err)
	}

	if err := svc.Kick(context.Background(), host, c.ID, member); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if ok, _ := svc.IsMember(context.Background(), member, c.ID); ok {
		t.Fatal("kicked user still a member")
	}

	// The kicked user is told about it.
	var n models.Notification
	if err := svc.db.Where("user_id = ? AND kind = ?", member, models.NotificationKicked).First(&n).Error; err != nil {
		t.Fatalf("expected a kicked notification: %v", err)
	}

	// And their lobby seat is free again.
	if _, err := svc.CreateContainer(context.Background(), member, models.KindLobby, CreateAttrs{Title: "own", MaxMembers: 2}); err != nil {
		t.Fatalf("create after kick: %v", err)
	}
}

func TestUpdateMaxMembersBelowCount(t *testing.T) {
	svc, _ := newTestService(t, nil)
	host := createUser(t, svc, "host")
	other := createUser(t, svc, "other")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})
	mustJoin(t, svc, other, c.ID)

	one := 1
	if _, err := svc.Update(context.Background(), host, c.ID, UpdateAttrs{MaxMembers: &one}); !errors.Is(err, ErrMaxMembersTooLow) {
		t.Fatalf("expected ErrMaxMembersTooLow, got %v", err)
	}

	two := 2
	updated, err := svc.Update(context.Background(), host, c.ID, UpdateAttrs{MaxMembers: &two})
	if err != nil {
		t.Fatalf("shrink to member count: %v", err)
	}
	if updated.MaxMembers != 2 {
		t.Fatalf("expected max_members 2, got %d", updated.MaxMembers)
	}

	if _, err := svc.Update(context.Background(), other, c.ID, UpdateAttrs{MaxMembers: &two}); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost for non-host update, got %v", err)
	}
}

func TestLockedContainers(t *testing.T) {
	svc, _ := newTestService(t, nil)
	host := createUser(t, svc, "host")
	joiner := createUser(t, svc, "joiner")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "private", MaxMembers: 4, Password: "hunter2"})

	if _, err := svc.Join(context.Background(), joiner, c.ID, ""); !errors.Is(err, ErrPasswordRequired) {
		t.Fatalf("expected ErrPasswordRequired, got %v", err)
	}
	if _, err := svc.Join(context.Background(), joiner, c.ID, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if _, err := svc.Join(context.Background(), joiner, c.ID, "hunter2"); err != nil {
		t.Fatalf("join with correct password: %v", err)
	}
}

// vetoHook rejects joins for one specific user.
type vetoHook struct {
	blocked uint
}

func (h vetoHook) BeforeContainerJoin(actorID uint, _ *models.Container) error {
	if actorID == h.blocked {
		return errors.New("banned")
	}
	return nil
}

// renameHook rewrites the title of every created container.
type renameHook struct{}

func (renameHook) BeforeContainerCreate(_ uint, _ models.ContainerKind, attrs CreateAttrs) (CreateAttrs, error) {
	attrs.Title = "[eu] " + attrs.Title
	return attrs, nil
}

func TestBeforeJoinVeto(t *testing.T) {
	hooks := NewHooks()
	svc, _ := newTestService(t, hooks)
	host := createUser(t, svc, "host")
	banned := createUser(t, svc, "banned")
	hooks.Register("banlist", vetoHook{blocked: banned})

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})

	_, err := svc.Join(context.Background(), banned, c.ID, "")
	var rejected *HookRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected HookRejectedError, got %v", err)
	}
	if rejected.Hook != "banlist" || rejected.Reason != "banned" {
		t.Fatalf("unexpected rejection detail: %+v", rejected)
	}

	// A vetoed join leaves no trace.
	cur, _ := svc.Get(context.Background(), c.ID)
	if cur.MemberCount != 1 {
		t.Fatalf("vetoed join changed member count: %d", cur.MemberCount)
	}
	var u models.User
	svc.db.First(&u, banned)
	if u.CurrentLobbyID != nil {
		t.Fatalf("vetoed join claimed a lobby seat: %v", u.CurrentLobbyID)
	}
}

func TestBeforeCreateRewritesAttrs(t *testing.T) {
	hooks := NewHooks().Register("region-tag", renameHook{})
	svc, _ := newTestService(t, hooks)
	host := createUser(t, svc, "host")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})
	if c.Title != "[eu] ranked" {
		t.Fatalf("expected rewritten title, got %q", c.Title)
	}
}

func TestPrivateGroupRequestFlow(t *testing.T) {
	svc, _ := newTestService(t, nil)
	admin := createUser(t, svc, "admin")
	applicant := createUser(t, svc, "applicant")

	g := mustCreate(t, svc, admin, models.KindGroup, CreateAttrs{
		Title: "clan", MaxMembers: 10, GroupType: models.GroupPrivate,
	})

	if _, err := svc.Join(context.Background(), applicant, g.ID, ""); !errors.Is(err, ErrRequestRequired) {
		t.Fatalf("expected ErrRequestRequired, got %v", err)
	}

	req, err := svc.RequestJoin(context.Background(), applicant, g.ID)
	if err != nil {
		t.Fatalf("request join: %v", err)
	}
	if _, err := svc.RequestJoin(context.Background(), applicant, g.ID); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("expected ErrRequestPending on duplicate, got %v", err)
	}

	if _, err := svc.ListRequests(context.Background(), applicant, g.ID); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin listing as applicant, got %v", err)
	}
	pending, err := svc.ListRequests(context.Background(), admin, g.ID)
	if err != nil {
		t.Fatalf("list requests: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != req.ID {
		t.Fatalf("expected the filed request, got %+v", pending)
	}

	if err := svc.ApproveRequest(context.Background(), admin, g.ID, req.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if ok, _ := svc.IsMember(context.Background(), applicant, g.ID); !ok {
		t.Fatal("approved applicant is not a member")
	}
	// Approving twice fails: the request is no longer pending.
	if err := svc.ApproveRequest(context.Background(), admin, g.ID, req.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound re-approving, got %v", err)
	}
}

func TestRejectRequestNotifies(t *testing.T) {
	svc, _ := newTestService(t, nil)
	admin := createUser(t, svc, "admin")
	applicant := createUser(t, svc, "applicant")

	g := mustCreate(t, svc, admin, models.KindGroup, CreateAttrs{
		Title: "clan", MaxMembers: 10, GroupType: models.GroupPrivate,
	})
	req, err := svc.RequestJoin(context.Background(), applicant, g.ID)
	if err != nil {
		t.Fatalf("request join: %v", err)
	}
	if err := svc.RejectRequest(context.Background(), admin, g.ID, req.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if ok, _ := svc.IsMember(context.Background(), applicant, g.ID); ok {
		t.Fatal("rejected applicant became a member")
	}
	var n models.Notification
	if err := svc.db.Where("user_id = ? AND kind = ?", applicant, models.NotificationRequestHandled).First(&n).Error; err != nil {
		t.Fatalf("expected a request-handled notification: %v", err)
	}
	if n.Payload["status"] != string(models.RequestRejected) {
		t.Fatalf("expected rejected status in payload, got %q", n.Payload["status"])
	}
}

func TestPromoteAndDemote(t *testing.T) {
	svc, _ := newTestService(t, nil)
	admin := createUser(t, svc, "admin")
	member := createUser(t, svc, "member")

	g := mustCreate(t, svc, admin, models.KindGroup, CreateAttrs{Title: "clan", MaxMembers: 10})
	mustJoin(t, svc, member, g.ID)

	if err := svc.Promote(context.Background(), member, g.ID, admin); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin promoting as member, got %v", err)
	}
	if err := svc.Promote(context.Background(), admin, g.ID, admin); !errors.Is(err, ErrCannotPromoteSelf) {
		t.Fatalf("expected ErrCannotPromoteSelf, got %v", err)
	}

	if err := svc.Promote(context.Background(), admin, g.ID, member); err != nil {
		t.Fatalf("promote: %v", err)
	}

	if err := svc.Demote(context.Background(), admin, g.ID, admin); !errors.Is(err, ErrCannotDemoteSelf) {
		t.Fatalf("expected ErrCannotDemoteSelf, got %v", err)
	}

	if err := svc.Demote(context.Background(), admin, g.ID, member); err != nil {
		t.Fatalf("demote: %v", err)
	}
	var admins int64
	svc.db.Model(&models.Membership{}).Where("container_id = ? AND role = ?", g.ID, models.RoleAdmin).Count(&admins)
	if admins != 1 {
		t.Fatalf("expected one admin left, got %d", admins)
	}

	// Demoting a plain member again is a no-op, not an error.
	if err := svc.Demote(context.Background(), admin, g.ID, member); err != nil {
		t.Fatalf("demote non-admin: %v", err)
	}

	// Promotion and demotion never apply to lobbies.
	host := createUser(t, svc, "host")
	lobby := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})
	if err := svc.Promote(context.Background(), host, lobby.ID, member); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound promoting in a lobby, got %v", err)
	}
}

func TestListFiltering(t *testing.T) {
	svc, _ := newTestService(t, nil)
	u1 := createUser(t, svc, "u1")
	u2 := createUser(t, svc, "u2")
	u3 := createUser(t, svc, "u3")

	mustCreate(t, svc, u1, models.KindLobby, CreateAttrs{Title: "Ranked EU", MaxMembers: 4,
		Metadata: map[string]string{"region": "eu"}})
	mustCreate(t, svc, u2, models.KindLobby, CreateAttrs{Title: "Casual NA", MaxMembers: 4,
		Metadata: map[string]string{"region": "na"}})
	mustCreate(t, svc, u3, models.KindLobby, CreateAttrs{Title: "Secret", MaxMembers: 4, Hidden: true})

	ctx := context.Background()

	all, err := svc.List(ctx, ListFilter{Kind: models.KindLobby, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if all.TotalCount != 2 {
		t.Fatalf("expected hidden lobby excluded, got %d results", all.TotalCount)
	}

	withHidden, err := svc.List(ctx, ListFilter{Kind: models.KindLobby, IncludeHidden: true, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list hidden: %v", err)
	}
	if withHidden.TotalCount != 3 {
		t.Fatalf("expected 3 with hidden included, got %d", withHidden.TotalCount)
	}

	byTitle, err := svc.List(ctx, ListFilter{Kind: models.KindLobby, Title: "ranked", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list by title: %v", err)
	}
	if byTitle.TotalCount != 1 || byTitle.Items[0].Title != "Ranked EU" {
		t.Fatalf("title filter mismatch: %+v", byTitle.Items)
	}

	byMeta, err := svc.List(ctx, ListFilter{Kind: models.KindLobby, MetaKey: "region", MetaValue: "na", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list by metadata: %v", err)
	}
	if byMeta.TotalCount != 1 || byMeta.Items[0].Title != "Casual NA" {
		t.Fatalf("metadata filter mismatch: %+v", byMeta.Items)
	}
}

func TestDeleteCascades(t *testing.T) {
	svc, _ := newTestService(t, nil)
	host := createUser(t, svc, "host")
	member := createUser(t, svc, "member")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})
	mustJoin(t, svc, member, c.ID)

	if err := svc.Delete(context.Background(), member, c.ID); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
	if err := svc.Delete(context.Background(), host, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := svc.Get(context.Background(), c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	var memberships int64
	svc.db.Model(&models.Membership{}).Where("container_id = ?", c.ID).Count(&memberships)
	if memberships != 0 {
		t.Fatalf("expected memberships removed, got %d", memberships)
	}

	// Both former members can rejoin elsewhere.
	mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "next", MaxMembers: 4})
	mustCreate(t, svc, member, models.KindLobby, CreateAttrs{Title: "other", MaxMembers: 4})
}

func TestJoinPublishesEvents(t *testing.T) {
	svc, b := newTestService(t, nil)
	host := createUser(t, svc, "host")
	joiner := createUser(t, svc, "joiner")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "ranked", MaxMembers: 4})

	sub, err := b.Subscribe(Topic(models.KindLobby, c.ID))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	global, err := b.Subscribe(GlobalTopic(models.KindLobby))
	if err != nil {
		t.Fatalf("subscribe global: %v", err)
	}
	defer global.Close()

	mustJoin(t, svc, joiner, c.ID)

	waitEvent(t, sub, EventMemberJoined)
	waitEvent(t, global, EventMemberJoined)
}

func TestHiddenContainersSkipGlobalTopic(t *testing.T) {
	svc, b := newTestService(t, nil)
	host := createUser(t, svc, "host")
	joiner := createUser(t, svc, "joiner")

	c := mustCreate(t, svc, host, models.KindLobby, CreateAttrs{Title: "secret", MaxMembers: 4, Hidden: true})

	global, err := b.Subscribe(GlobalTopic(models.KindLobby))
	if err != nil {
		t.Fatalf("subscribe global: %v", err)
	}
	defer global.Close()
	direct, err := b.Subscribe(Topic(models.KindLobby, c.ID))
	if err != nil {
		t.Fatalf("subscribe direct: %v", err)
	}
	defer direct.Close()

	mustJoin(t, svc, joiner, c.ID)

	waitEvent(t, direct, EventMemberJoined)
	select {
	case ev := <-global.C():
		t.Fatalf("hidden container leaked onto the global topic: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHostlessLobby(t *testing.T) {
	svc, _ := newTestService(t, nil)
	system := createUser(t, svc, "system")
	p1 := createUser(t, svc, "p1")
	p2 := createUser(t, svc, "p2")

	c := mustCreate(t, svc, system, models.KindLobby, CreateAttrs{Title: "matchmaking", MaxMembers: 2, Hostless: true})
	if c.MemberCount != 0 {
		t.Fatalf("hostless lobby should start empty, got %d", c.MemberCount)
	}
	if c.HostID != nil {
		t.Fatalf("hostless lobby must have no host, got %v", c.HostID)
	}

	mustJoin(t, svc, p1, c.ID)
	mustJoin(t, svc, p2, c.ID)

	cur, _ := svc.Get(context.Background(), c.ID)
	if cur.HostID != nil {
		t.Fatalf("joining a hostless lobby must not elect a host, got %v", cur.HostID)
	}
	for _, m := range cur.Memberships {
		if m.Role != models.RoleMember {
			t.Fatalf("expected plain member roles, got %q", m.Role)
		}
	}

	// No host succession either: first member out changes nothing.
	if err := svc.Leave(context.Background(), p1, c.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	cur, _ = svc.Get(context.Background(), c.ID)
	if cur.HostID != nil || cur.Memberships[0].Role != models.RoleMember {
		t.Fatalf("hostless invariants broken after leave: %+v", cur)
	}
}

func TestUndeliveredNotifications(t *testing.T) {
	svc, _ := newTestService(t, nil)
	user := createUser(t, svc, "user")

	svc.Notify(context.Background(), user, models.NotificationFriendRequest, map[string]string{"from": "1"})
	svc.Notify(context.Background(), user, models.NotificationKicked, map[string]string{"container_id": "7"})

	ctx := context.Background()
	items, err := svc.UndeliveredNotifications(ctx, user)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 queued notifications, got %d", len(items))
	}

	// Second fetch is empty: delivery is recorded.
	again, err := svc.UndeliveredNotifications(ctx, user)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no undelivered notifications, got %d", len(again))
	}
}

func TestSetOnlineNotifiesFriends(t *testing.T) {
	svc, b := newTestService(t, nil)
	user := createUser(t, svc, "user")
	friend := createUser(t, svc, "friend")
	stranger := createUser(t, svc, "stranger")

	if err := svc.db.Create(&models.UserRelation{
		FromUserID: friend, ToUserID: user, Status: models.StatusAccepted,
	}).Error; err != nil {
		t.Fatalf("create relation: %v", err)
	}

	friendSub, _ := b.Subscribe(UserTopic(friend))
	defer friendSub.Close()
	strangerSub, _ := b.Subscribe(UserTopic(stranger))
	defer strangerSub.Close()

	if err := svc.SetOnline(context.Background(), user, true); err != nil {
		t.Fatalf("set online: %v", err)
	}

	waitEvent(t, friendSub, EventPresenceChanged)
	select {
	case ev := <-strangerSub.C():
		t.Fatalf("stranger received presence event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	var u models.User
	svc.db.First(&u, user)
	if !u.Online {
		t.Fatal("online flag not persisted")
	}
}

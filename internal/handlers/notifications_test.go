package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/carpenike/reformer/internal/models"
)

type notificationList struct {
	Notifications []notificationView `json:"notifications"`
	Unread        int                `json:"unread"`
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t)
	user := seedUser(t, env.db, "dana", false)
	other := seedUser(t, env.db, "erin", false)
	c := env.login(t, "dana")

	var ids []int64
	for i := range 3 {
		n, err := models.CreateNotification(env.db, user.ID, models.NotifyWorkoutLogged, fmt.Sprintf("Logged %d", i), "", "/tracking")
		if err != nil {
			t.Fatalf("create notification: %v", err)
		}
		ids = append(ids, n.ID)
	}
	foreign, err := models.CreateNotification(env.db, other.ID, models.NotifyPlanReady, "Not yours", "", "")
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}

	status, body := c.do("GET", "/api/notifications?limit=2", nil)
	if status != http.StatusOK {
		t.Fatalf("list status = %d: %s", status, body)
	}
	var list notificationList
	decode(t, body, &list)
	if len(list.Notifications) != 2 || list.Unread != 3 {
		t.Fatalf("list = %d notifications, %d unread; want 2, 3", len(list.Notifications), list.Unread)
	}
	if list.Notifications[0].ID != ids[2] {
		t.Errorf("first notification = %d, want newest %d", list.Notifications[0].ID, ids[2])
	}

	if status, _ := c.do("POST", fmt.Sprintf("/api/notifications/%d/read", ids[0]), nil); status != http.StatusNoContent {
		t.Fatalf("mark read status = %d", status)
	}
	if status, _ := c.do("POST", fmt.Sprintf("/api/notifications/%d/read", foreign.ID), nil); status != http.StatusNotFound {
		t.Errorf("mark foreign status = %d, want 404", status)
	}
	if status, _ := c.do("POST", "/api/notifications/abc/read", nil); status != http.StatusBadRequest {
		t.Errorf("mark bad id status = %d, want 400", status)
	}

	status, body = c.do("POST", "/api/notifications/read-all", nil)
	if status != http.StatusOK {
		t.Fatalf("read-all status = %d", status)
	}
	var marked struct {
		Marked int64 `json:"marked"`
	}
	decode(t, body, &marked)
	if marked.Marked != 2 {
		t.Errorf("marked = %d, want 2", marked.Marked)
	}

	_, body = c.do("GET", "/api/notifications", nil)
	decode(t, body, &list)
	if list.Unread != 0 || len(list.Notifications) != 3 {
		t.Errorf("after read-all: %d notifications, %d unread", len(list.Notifications), list.Unread)
	}

	if status, _ := c.do("GET", "/api/notifications?limit=0", nil); status != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", status)
	}
}

func TestNotificationPreferences(t *testing.T) {
	env := newTestEnv(t)
	seedUser(t, env.db, "dana", false)
	c := env.login(t, "dana")

	status, body := c.do("GET", "/api/notifications/preferences", nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	var got struct {
		Types       []models.NotificationType       `json:"types"`
		Preferences []models.NotificationPreference `json:"preferences"`
	}
	decode(t, body, &got)
	if len(got.Types) != len(models.AllNotificationTypes) {
		t.Errorf("types = %d, want %d", len(got.Types), len(models.AllNotificationTypes))
	}
	for _, p := range got.Preferences {
		if !p.InApp || p.External {
			t.Errorf("default preference %+v, want in-app only", p)
		}
	}

	status, body = c.do("PUT", "/api/notifications/preferences", []models.NotificationPreference{
		{Type: models.NotifyPlanReady, InApp: true, External: true},
		{Type: models.NotifyWorkoutLogged, InApp: false, External: false},
	})
	if status != http.StatusOK {
		t.Fatalf("put status = %d: %s", status, body)
	}
	var saved []models.NotificationPreference
	decode(t, body, &saved)
	byType := make(map[string]models.NotificationPreference)
	for _, p := range saved {
		byType[p.Type] = p
	}
	if p := byType[models.NotifyPlanReady]; !p.InApp || !p.External {
		t.Errorf("plan_ready = %+v", p)
	}
	if p := byType[models.NotifyWorkoutLogged]; p.InApp || p.External {
		t.Errorf("workout_logged = %+v", p)
	}
	if p := byType[models.NotifyStreakMilestone]; !p.InApp || p.External {
		t.Errorf("streak_milestone = %+v, want default", p)
	}

	status, _ = c.do("PUT", "/api/notifications/preferences", []models.NotificationPreference{{Type: "bogus", InApp: true}})
	if status != http.StatusUnprocessableEntity {
		t.Errorf("unknown type status = %d, want 422", status)
	}
}

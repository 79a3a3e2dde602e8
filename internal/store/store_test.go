package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *SQLiteStore, name, token string) Client {
	t.Helper()
	c, err := s.CreateClient(context.Background(), Client{Name: name, Token: token})
	if err != nil {
		t.Fatalf("CreateClient(%s): %v", name, err)
	}
	return c
}

func TestCreateClient_Defaults(t *testing.T) {
	s := newTestStore(t)
	c := mustCreate(t, s, "Acme Corp", "tok-1")

	if c.ID == "" {
		t.Error("ID not generated")
	}
	if c.Slug != "acme-corp" {
		t.Errorf("Slug = %q, want acme-corp", c.Slug)
	}
	if c.Status != StatusNotConnected {
		t.Errorf("Status = %q, want %q", c.Status, StatusNotConnected)
	}
	if !c.AutoRecover {
		t.Error("AutoRecover should default to true")
	}

	got, err := s.GetClient(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetClient: %v", err)
	}
	if got.Name != "Acme Corp" || got.Token != "tok-1" {
		t.Errorf("round trip = %+v", got)
	}
}

func TestCreateClient_Validation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.CreateClient(context.Background(), Client{Token: "t"}); err == nil {
		t.Error("want error for empty name")
	}
	if _, err := s.CreateClient(context.Background(), Client{Name: "n"}); err == nil {
		t.Error("want error for empty token")
	}
}

func TestLookups(t *testing.T) {
	s := newTestStore(t)
	c := mustCreate(t, s, "Acme", "tok-acme")

	if got, err := s.GetClientBySlug(context.Background(), "acme"); err != nil || got.ID != c.ID {
		t.Errorf("GetClientBySlug = %+v, %v", got, err)
	}
	if got, err := s.GetClientByToken(context.Background(), "tok-acme"); err != nil || got.ID != c.ID {
		t.Errorf("GetClientByToken = %+v, %v", got, err)
	}
	if _, err := s.GetClient(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetClient(nope) err = %v, want ErrNotFound", err)
	}
}

func TestMarkSuccessResetsStreak(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, "Acme", "tok")
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		if err := s.MarkFailure(ctx, c.ID, "boom", now); err != nil {
			t.Fatalf("MarkFailure: %v", err)
		}
	}
	got, _ := s.GetClient(ctx, c.ID)
	if got.Status != StatusOffline || got.ConsecutiveFailures != 2 || got.FailureCount != 2 {
		t.Fatalf("after failures: status=%s streak=%d failures=%d", got.Status, got.ConsecutiveFailures, got.FailureCount)
	}
	if got.LastError == nil || *got.LastError != "boom" {
		t.Errorf("LastError = %v", got.LastError)
	}

	if err := s.MarkSuccess(ctx, c.ID, 120, now); err != nil {
		t.Fatalf("MarkSuccess: %v", err)
	}
	got, _ = s.GetClient(ctx, c.ID)
	if got.Status != StatusConnected {
		t.Errorf("Status = %s, want Connected", got.Status)
	}
	if got.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want reset to 0", got.ConsecutiveFailures)
	}
	if got.SuccessCount != 1 || got.FailureCount != 2 {
		t.Errorf("counters = %d/%d, want 1/2", got.SuccessCount, got.FailureCount)
	}
	if got.LastError != nil {
		t.Errorf("LastError = %v, want cleared", got.LastError)
	}
	if got.LastLatencyMs == nil || *got.LastLatencyMs != 120 {
		t.Errorf("LastLatencyMs = %v, want 120", got.LastLatencyMs)
	}
}

func TestMarkFailureTruncatesError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, "Acme", "tok")

	long := strings.Repeat("x", 4000)
	if err := s.MarkFailure(ctx, c.ID, long, time.Now()); err != nil {
		t.Fatalf("MarkFailure: %v", err)
	}
	got, _ := s.GetClient(ctx, c.ID)
	if got.LastError == nil || len(*got.LastError) != maxErrorLen {
		t.Errorf("stored error length = %d, want %d", len(ptrStr(got.LastError)), maxErrorLen)
	}
}

func TestStampAlert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, "Acme", "tok")
	at := time.Now().UTC().Truncate(time.Second)

	if err := s.StampAlert(ctx, c.ID, at); err != nil {
		t.Fatalf("StampAlert: %v", err)
	}
	got, _ := s.GetClient(ctx, c.ID)
	if got.LastAlertAt == nil || !got.LastAlertAt.Equal(at) {
		t.Errorf("LastAlertAt = %v, want %v", got.LastAlertAt, at)
	}
}

func TestListTracked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	connected := mustCreate(t, s, "Connected Co", "t1")
	failing := mustCreate(t, s, "Failing Co", "t2")
	idle := mustCreate(t, s, "Idle Co", "t3")

	if err := s.MarkSuccess(ctx, connected.ID, 50, now); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkFailure(ctx, failing.ID, "down", now); err != nil {
		t.Fatal(err)
	}

	tracked, err := s.ListTracked(ctx, 25)
	if err != nil {
		t.Fatalf("ListTracked: %v", err)
	}
	ids := make(map[string]bool)
	for _, c := range tracked {
		ids[c.ID] = true
	}
	if !ids[connected.ID] || !ids[failing.ID] {
		t.Errorf("tracked = %v, want connected and failing clients", ids)
	}
	if ids[idle.ID] {
		t.Error("never-connected idle client should not be tracked")
	}

	warm, err := s.ListConnected(ctx, 10)
	if err != nil {
		t.Fatalf("ListConnected: %v", err)
	}
	if len(warm) != 1 || warm[0].ID != connected.ID {
		t.Errorf("ListConnected = %d clients, want just the connected one", len(warm))
	}
}

func TestUpdateAlertSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, "Acme", "tok")

	channel := "whatsapp"
	target := "+5511999999999"
	err := s.UpdateAlertSettings(ctx, c.ID, AlertSettings{
		AlertEnabled: true,
		AlertChannel: &channel,
		AlertTarget:  &target,
		AutoRecover:  false,
	})
	if err != nil {
		t.Fatalf("UpdateAlertSettings: %v", err)
	}
	got, _ := s.GetClient(ctx, c.ID)
	if !got.AlertEnabled || got.AlertChannel == nil || *got.AlertChannel != "whatsapp" {
		t.Errorf("settings not applied: %+v", got)
	}
	if got.AutoRecover {
		t.Error("AutoRecover = true, want disabled")
	}
}

func TestSetTeamAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := mustCreate(t, s, "Acme", "tok")

	if err := s.SetTeam(ctx, c.ID, "team-9"); err != nil {
		t.Fatalf("SetTeam: %v", err)
	}
	got, _ := s.GetClient(ctx, c.ID)
	if got.TeamID == nil || *got.TeamID != "team-9" {
		t.Errorf("TeamID = %v, want team-9", got.TeamID)
	}

	if err := s.DeleteClient(ctx, c.ID); err != nil {
		t.Fatalf("DeleteClient: %v", err)
	}
	if _, err := s.GetClient(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteClient(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func ptrStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

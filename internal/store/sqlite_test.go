package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	apperrors "options-desk/internal/errors"
	"options-desk/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestUser(t *testing.T, s *SQLiteStore, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Email: username + "@example.com", HashedPassword: "x"}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user
}

func testLegs() []models.StrategyLeg {
	expiry := time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC)
	return []models.StrategyLeg{
		{IndexName: models.IndexNifty, Strike: 24000, OptionType: models.OptionCall, Expiry: expiry, Action: models.ActionBuy, Lots: 1},
		{IndexName: models.IndexNifty, Strike: 24200, OptionType: models.OptionCall, Expiry: expiry, Action: models.ActionSell, Lots: 1},
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "alice")

	dup := &models.User{Username: "alice", Email: "other@example.com", HashedPassword: "y"}
	if err := s.CreateUser(context.Background(), dup); !apperrors.Is(err, apperrors.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestPortfolioOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, s, "owner")
	other := createTestUser(t, s, "other")

	p := &models.Portfolio{UserID: owner.ID, Name: "straddle", IsActive: true}
	if err := s.CreatePortfolio(ctx, p); err != nil {
		t.Fatalf("CreatePortfolio failed: %v", err)
	}

	if _, err := s.GetPortfolio(ctx, p.ID, owner.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := s.GetPortfolio(ctx, p.ID, other.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner, got %v", err)
	}
	if err := s.DeletePortfolio(ctx, p.ID, other.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting as non-owner, got %v", err)
	}
}

func TestPortfolioLegLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "legs")

	p := &models.Portfolio{UserID: user.ID, Name: "spread", IsActive: true}
	if err := s.CreatePortfolio(ctx, p); err != nil {
		t.Fatalf("CreatePortfolio failed: %v", err)
	}

	leg := &models.PortfolioLeg{
		PortfolioID: p.ID,
		IndexName:   models.IndexNifty,
		Strike:      24000,
		OptionType:  models.OptionCall,
		Expiry:      time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC),
		Action:      models.ActionBuy,
		Lots:        2,
	}
	if err := s.AddPortfolioLeg(ctx, leg); err != nil {
		t.Fatalf("AddPortfolioLeg failed: %v", err)
	}

	legs, err := s.GetPortfolioLegs(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPortfolioLegs failed: %v", err)
	}
	if len(legs) != 1 || legs[0].Lots != 2 {
		t.Fatalf("unexpected legs: %+v", legs)
	}

	got, err := s.GetPortfolio(ctx, p.ID, user.ID)
	if err != nil {
		t.Fatalf("GetPortfolio failed: %v", err)
	}
	if got.LegCount != 1 {
		t.Errorf("LegCount = %d, want 1", got.LegCount)
	}

	leg.Action = models.ActionSell
	leg.Lots = 3
	leg.Strike = 24200
	if err := s.UpdatePortfolioLeg(ctx, leg); err != nil {
		t.Fatalf("UpdatePortfolioLeg failed: %v", err)
	}
	legs, err = s.GetPortfolioLegs(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPortfolioLegs after update failed: %v", err)
	}
	if legs[0].Action != models.ActionSell || legs[0].Lots != 3 || legs[0].Strike != 24200 {
		t.Fatalf("update not applied: %+v", legs[0])
	}

	// A leg id under someone else's portfolio is a miss.
	foreign := *leg
	foreign.PortfolioID = p.ID + 100
	if err := s.UpdatePortfolioLeg(ctx, &foreign); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign portfolio, got %v", err)
	}

	if err := s.DeletePortfolioLeg(ctx, leg.ID, p.ID); err != nil {
		t.Fatalf("DeletePortfolioLeg failed: %v", err)
	}
	if err := s.DeletePortfolioLeg(ctx, leg.ID, p.ID); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRunLifecycleSingleTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "runner")

	run := &models.BacktestRun{
		UserID:       user.ID,
		Name:         "iron condor",
		BacktestDate: time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC),
		Legs:         testLegs(),
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if run.Status != models.RunRunning {
		t.Fatalf("new run status = %s, want running", run.Status)
	}

	completedAt := time.Now().UTC()
	if err := s.CompleteRun(ctx, run.ID, "-9037.5", "-8000", completedAt); err != nil {
		t.Fatalf("CompleteRun failed: %v", err)
	}

	// Second transition of any kind must be rejected.
	if err := s.CompleteRun(ctx, run.ID, "0", "0", completedAt); !apperrors.Is(err, apperrors.ErrRunTerminal) {
		t.Fatalf("expected ErrRunTerminal on second complete, got %v", err)
	}
	if err := s.FailRun(ctx, run.ID, "late failure", completedAt); !apperrors.Is(err, apperrors.ErrRunTerminal) {
		t.Fatalf("expected ErrRunTerminal on fail after complete, got %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != models.RunCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.NetPremiumStart == nil || !got.NetPremiumStart.Equal(decimal.RequireFromString("-9037.5")) {
		t.Errorf("NetPremiumStart = %v, want -9037.5", got.NetPremiumStart)
	}
	if len(got.Legs) != 2 {
		t.Errorf("legs = %d, want 2", len(got.Legs))
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestFailRunRecordsReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "failer")

	run := &models.BacktestRun{
		UserID:       user.ID,
		Name:         "holiday run",
		BacktestDate: time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC),
		Legs:         testLegs(),
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	if err := s.FailRun(ctx, run.ID, "no market data available", time.Now().UTC()); err != nil {
		t.Fatalf("FailRun failed: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	if got.Error != "no market data available" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestResultsRoundTripOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "results")

	run := &models.BacktestRun{
		UserID:       user.ID,
		Name:         "series",
		BacktestDate: time.Date(2025, 8, 14, 0, 0, 0, 0, time.UTC),
		Legs:         testLegs(),
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	base := time.Date(2025, 8, 14, 9, 15, 0, 0, time.UTC)
	samples := []models.NetPremiumSample{
		{Timestamp: base, NetPremium: decimal.RequireFromString("-9037.5"), Volume: 10},
		{Timestamp: base.Add(time.Minute), NetPremium: decimal.RequireFromString("-9000.25"), Volume: 20},
		{Timestamp: base.Add(2 * time.Minute), NetPremium: decimal.RequireFromString("-8950"), Volume: 5},
	}
	if err := s.SaveResults(ctx, run.ID, samples); err != nil {
		t.Fatalf("SaveResults failed: %v", err)
	}

	got, err := s.GetResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetResults failed: %v", err)
	}
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range got {
		if !got[i].NetPremium.Equal(samples[i].NetPremium) {
			t.Errorf("sample %d net premium = %s, want %s", i, got[i].NetPremium, samples[i].NetPremium)
		}
		if i > 0 && !got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Errorf("results not ordered at %d", i)
		}
	}
}

func TestLivePriceUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := models.LivePrice{Symbol: "NIFTY25AUG24000CE", Price: 120.5, Timestamp: time.Now().UTC()}
	if err := s.UpsertLivePrice(ctx, first); err != nil {
		t.Fatalf("UpsertLivePrice failed: %v", err)
	}

	second := first
	second.Price = 121.0
	second.Timestamp = first.Timestamp.Add(time.Second)
	if err := s.UpsertLivePrice(ctx, second); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := s.GetLivePrice(ctx, first.Symbol)
	if err != nil {
		t.Fatalf("GetLivePrice failed: %v", err)
	}
	if got.Price != 121.0 {
		t.Errorf("price = %v, want 121.0", got.Price)
	}

	if _, err := s.GetLivePrice(ctx, "UNKNOWN"); !apperrors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := &AuditEntry{Action: "create", Entity: "backtest", EntityID: int64(i + 1), UserID: 1}
		if err := s.AppendAudit(ctx, entry); err != nil {
			t.Fatalf("AppendAudit failed: %v", err)
		}
	}

	entries, err := s.RecentAudit(ctx, 2)
	if err != nil {
		t.Fatalf("RecentAudit failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].EntityID != 3 {
		t.Errorf("newest entry first: got entity id %d", entries[0].EntityID)
	}

	stats, err := s.AuditStats(ctx)
	if err != nil {
		t.Fatalf("AuditStats failed: %v", err)
	}
	if stats.TotalEntries != 3 {
		t.Errorf("TotalEntries = %d, want 3", stats.TotalEntries)
	}
}

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"options-desk/internal/models"
)

// DataStore defines the interface for data persistence.
type DataStore interface {
	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	// Portfolios
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	GetPortfolio(ctx context.Context, id, userID int64) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context, userID int64) ([]models.Portfolio, error)
	UpdatePortfolio(ctx context.Context, p *models.Portfolio) error
	DeletePortfolio(ctx context.Context, id, userID int64) error

	// Portfolio legs
	AddPortfolioLeg(ctx context.Context, leg *models.PortfolioLeg) error
	GetPortfolioLegs(ctx context.Context, portfolioID int64) ([]models.PortfolioLeg, error)
	UpdatePortfolioLeg(ctx context.Context, leg *models.PortfolioLeg) error
	DeletePortfolioLeg(ctx context.Context, legID, portfolioID int64) error

	// Backtest runs
	SaveRun(ctx context.Context, run *models.BacktestRun) error
	GetRun(ctx context.Context, id int64) (*models.BacktestRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]models.BacktestRun, error)
	CompleteRun(ctx context.Context, id int64, start, end string, completedAt time.Time) error
	FailRun(ctx context.Context, id int64, reason string, completedAt time.Time) error
	SaveResults(ctx context.Context, runID int64, samples []models.NetPremiumSample) error
	GetResults(ctx context.Context, runID int64) ([]models.NetPremiumSample, error)

	// Live prices
	UpsertLivePrice(ctx context.Context, price models.LivePrice) error
	GetLivePrice(ctx context.Context, symbol string) (*models.LivePrice, error)

	// Audit log
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error)
	AuditStats(ctx context.Context) (*AuditStats, error)

	// Lifecycle
	Close() error
}

// RunFilter represents filters for querying backtest runs.
type RunFilter struct {
	UserID int64
	Status models.RunStatus
	Limit  int
}

// AuditEntry is a single audit log record.
type AuditEntry struct {
	ID        int64
	Action    string
	Entity    string
	EntityID  int64
	UserID    int64
	Details   string
	Snapshot  string
	CreatedAt time.Time
}

// AuditStats summarizes the audit log.
type AuditStats struct {
	TotalEntries int64
	LastEntry    time.Time
}

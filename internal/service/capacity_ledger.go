package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/weekend-academy-api/internal/models"
	appErrors "github.com/noah-isme/weekend-academy-api/pkg/errors"
)

type sessionLedgerRepository interface {
	LockSessions(ctx context.Context, exec sqlx.ExtContext, ids []string) ([]string, error)
	Availability(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionAvailability, error)
}

// CapacityLedger derives seat availability from committed and in-flight
// enrollment state. Writers lock the sessions first and then read the ledger
// through the same transaction.
type CapacityLedger struct {
	sessions sessionLedgerRepository
	metrics  *MetricsService
}

// NewCapacityLedger constructs the ledger.
func NewCapacityLedger(sessions sessionLedgerRepository, metrics *MetricsService) *CapacityLedger {
	return &CapacityLedger{sessions: sessions, metrics: metrics}
}

// Lock takes row locks on the distinct sessions in ascending id order. It
// fails with NOT_FOUND when any session is missing.
func (l *CapacityLedger) Lock(ctx context.Context, exec sqlx.ExtContext, ids ...string) error {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	locked, err := l.sessions.LockSessions(ctx, exec, unique)
	if err != nil {
		return err
	}
	if len(locked) != len(unique) {
		return appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return nil
}

// Available returns the ledger of a session.
func (l *CapacityLedger) Available(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.SessionAvailability, error) {
	item, err := l.sessions.Availability(ctx, exec, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, err
	}
	return item, nil
}

// Require fails with CAPACITY_EXCEEDED unless the session has at least
// minAvailable free seats. A minimum of 1 admits a new pending seat; 0 checks
// that an already counted pending seat still fits.
func (l *CapacityLedger) Require(ctx context.Context, exec sqlx.ExtContext, sessionID string, minAvailable int, operation string) (*models.SessionAvailability, error) {
	item, err := l.Available(ctx, exec, sessionID)
	if err != nil {
		return nil, err
	}
	if item.Available() < minAvailable {
		l.metrics.RecordCapacityRejection(operation)
		return item, appErrors.Clone(appErrors.ErrCapacityExceeded, fmt.Sprintf("%s session %s-%s is full", dayLabel(item.Day), item.StartTime, item.EndTime))
	}
	return item, nil
}

func dayLabel(day models.Day) string {
	s := strings.ToLower(string(day))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

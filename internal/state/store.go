// Package state persists what must survive a restart: the alert filter
// states and the pump states.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

// Store loads and saves the controller state.
type Store interface {
	LoadState(ctx context.Context) ([]entities.AlertFilterState, []entities.IrrigationState, error)
	SaveState(ctx context.Context, alerts []entities.AlertFilterState, pumps []entities.IrrigationState) error
}

type alertRow struct {
	Class        string `gorm:"primaryKey"`
	LastSeverity int
	LastFiredAt  *time.Time
	PendingSince *time.Time
	FiredOnce    bool
	UpdatedAt    time.Time
}

func (alertRow) TableName() string { return "alert_states" }

type pumpRow struct {
	Pump           string `gorm:"primaryKey"`
	IsRunning      bool
	StartedAt      *time.Time
	LastFinishedAt *time.Time
	Mode           string
	DurationMS     int64
	Unconfirmed    bool
	UpdatedAt      time.Time
}

func (pumpRow) TableName() string { return "pump_states" }

// DB is the sqlite backed store.
type DB struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(path string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open state database %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	if err := db.AutoMigrate(&alertRow{}, &pumpRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return &DB{db: db}, nil
}

func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadState returns the stored states. Pumps stored as running come back
// unconfirmed: their physical state after the restart is unknown.
func (s *DB) LoadState(ctx context.Context) ([]entities.AlertFilterState, []entities.IrrigationState, error) {
	var ar []alertRow
	if err := s.db.WithContext(ctx).Order("class").Find(&ar).Error; err != nil {
		return nil, nil, fmt.Errorf("load alert states: %w", err)
	}
	var pr []pumpRow
	if err := s.db.WithContext(ctx).Order("pump").Find(&pr).Error; err != nil {
		return nil, nil, fmt.Errorf("load pump states: %w", err)
	}

	alerts := make([]entities.AlertFilterState, 0, len(ar))
	for _, r := range ar {
		alerts = append(alerts, entities.AlertFilterState{
			Class:        entities.AlertClass(r.Class),
			LastSeverity: entities.SeverityLevel(r.LastSeverity),
			LastFiredAt:  utc(r.LastFiredAt),
			PendingSince: utc(r.PendingSince),
			FiredOnce:    r.FiredOnce,
		})
	}
	pumps := make([]entities.IrrigationState, 0, len(pr))
	for _, r := range pr {
		pumps = append(pumps, markUnconfirmed(entities.IrrigationState{
			Pump:           r.Pump,
			IsRunning:      r.IsRunning,
			StartedAt:      utc(r.StartedAt),
			LastFinishedAt: utc(r.LastFinishedAt),
			Mode:           entities.RunMode(r.Mode),
			Duration:       time.Duration(r.DurationMS) * time.Millisecond,
			Unconfirmed:    r.Unconfirmed,
		}))
	}
	return alerts, pumps, nil
}

// SaveState upserts every given state in one transaction.
func (s *DB) SaveState(ctx context.Context, alerts []entities.AlertFilterState, pumps []entities.IrrigationState) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(alerts) > 0 {
			rows := make([]alertRow, 0, len(alerts))
			for _, a := range alerts {
				rows = append(rows, alertRow{
					Class:        string(a.Class),
					LastSeverity: int(a.LastSeverity),
					LastFiredAt:  a.LastFiredAt,
					PendingSince: a.PendingSince,
					FiredOnce:    a.FiredOnce,
				})
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return fmt.Errorf("save alert states: %w", err)
			}
		}
		if len(pumps) > 0 {
			rows := make([]pumpRow, 0, len(pumps))
			for _, p := range pumps {
				rows = append(rows, pumpRow{
					Pump:           p.Pump,
					IsRunning:      p.IsRunning,
					StartedAt:      p.StartedAt,
					LastFinishedAt: p.LastFinishedAt,
					Mode:           string(p.Mode),
					DurationMS:     p.Duration.Milliseconds(),
					Unconfirmed:    p.Unconfirmed,
				})
			}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
				return fmt.Errorf("save pump states: %w", err)
			}
		}
		return nil
	})
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func markUnconfirmed(st entities.IrrigationState) entities.IrrigationState {
	if st.IsRunning {
		st.Unconfirmed = true
	}
	return st
}

// Memory is a Store kept in process memory.
type Memory struct {
	mu     sync.Mutex
	alerts map[entities.AlertClass]entities.AlertFilterState
	pumps  map[string]entities.IrrigationState
	// Err, when set, is returned by every call.
	Err error
}

func NewMemory() *Memory {
	return &Memory{
		alerts: map[entities.AlertClass]entities.AlertFilterState{},
		pumps:  map[string]entities.IrrigationState{},
	}
}

func (m *Memory) LoadState(context.Context) ([]entities.AlertFilterState, []entities.IrrigationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, nil, m.Err
	}
	alerts := make([]entities.AlertFilterState, 0, len(m.alerts))
	for _, a := range m.alerts {
		alerts = append(alerts, a)
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Class < alerts[j].Class })
	pumps := make([]entities.IrrigationState, 0, len(m.pumps))
	for _, p := range m.pumps {
		pumps = append(pumps, markUnconfirmed(p))
	}
	sort.Slice(pumps, func(i, j int) bool { return pumps[i].Pump < pumps[j].Pump })
	return alerts, pumps, nil
}

func (m *Memory) SaveState(_ context.Context, alerts []entities.AlertFilterState, pumps []entities.IrrigationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for _, a := range alerts {
		m.alerts[a.Class] = a
	}
	for _, p := range pumps {
		m.pumps[p.Pump] = p
	}
	return nil
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*Memory)(nil)
)

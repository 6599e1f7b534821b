package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Conceptual-Machines/melody-api/internal/apperrors"
	"github.com/Conceptual-Machines/melody-api/internal/models"
	"gorm.io/gorm"
)

const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

// ErrGenerationNotFound is returned when no generation matches the lookup
var ErrGenerationNotFound = errors.New("generation not found")

// HistoryService stores and lists generation records
type HistoryService struct {
	db *gorm.DB
}

func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db}
}

// Record inserts a generation
func (s *HistoryService) Record(ctx context.Context, generation *models.Generation) error {
	if err := s.db.WithContext(ctx).Create(generation).Error; err != nil {
		return apperrors.Storage(fmt.Errorf("insert generation %s: %w", generation.ID, err), "")
	}
	return nil
}

// HistoryFilter selects whose generations to list. UserID wins over SessionID.
type HistoryFilter struct {
	SessionID string
	UserID    string
	Limit     int
}

// List returns the newest generations matching filter
func (s *HistoryService) List(ctx context.Context, filter HistoryFilter) ([]models.Generation, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryPageSize
	}
	if limit > maxHistoryPageSize {
		limit = maxHistoryPageSize
	}

	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	switch {
	case filter.UserID != "":
		query = query.Where("user_id = ?", filter.UserID)
	case filter.SessionID != "":
		query = query.Where("session_id = ?", filter.SessionID)
	default:
		return []models.Generation{}, nil
	}

	var generations []models.Generation
	if err := query.Find(&generations).Error; err != nil {
		return nil, apperrors.Storage(fmt.Errorf("list generations: %w", err), "The generation history could not be loaded.")
	}
	return generations, nil
}

// Get returns one generation owned by the filter's user or session
func (s *HistoryService) Get(ctx context.Context, id string, filter HistoryFilter) (*models.Generation, error) {
	query := s.db.WithContext(ctx).Where("id = ?", id)
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	} else {
		query = query.Where("session_id = ?", filter.SessionID)
	}

	var generation models.Generation
	if err := query.First(&generation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGenerationNotFound
		}
		return nil, apperrors.Storage(fmt.Errorf("get generation %s: %w", id, err), "The generation history could not be loaded.")
	}
	return &generation, nil
}

// Stats summarizes generations of a session or user
type Stats struct {
	Total     int64 `json:"total"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// Stats counts generations matching filter by status
func (s *HistoryService) Stats(ctx context.Context, filter HistoryFilter) (*Stats, error) {
	type row struct {
		Status string
		Count  int64
	}
	query := s.db.WithContext(ctx).Model(&models.Generation{}).Select("status, count(*) as count").Group("status")
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	} else {
		query = query.Where("session_id = ?", filter.SessionID)
	}

	var rows []row
	if err := query.Scan(&rows).Error; err != nil {
		return nil, apperrors.Storage(fmt.Errorf("count generations: %w", err), "The generation history could not be loaded.")
	}

	stats := &Stats{}
	for _, r := range rows {
		stats.Total += r.Count
		switch r.Status {
		case models.GenerationStatusSucceeded:
			stats.Succeeded = r.Count
		case models.GenerationStatusFailed:
			stats.Failed = r.Count
		}
	}
	return stats, nil
}

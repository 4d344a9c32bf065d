// Package catalog serves establishments, their services, marketplace
// products and appointment bookings.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/models"
)

type Service struct {
	db  *sqlx.DB
	log logrus.FieldLogger
	now func() time.Time
}

func New(db *sqlx.DB, log logrus.FieldLogger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

// ListEstablishments favours availability: a store failure is logged and an
// empty list returned.
func (s *Service) ListEstablishments(ctx context.Context) []models.Establishment {
	establishments := []models.Establishment{}
	err := s.db.SelectContext(ctx, &establishments, `
		SELECT id, name, description, address, category, image_url, created_at
		FROM establishments
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		s.log.WithError(err).Error("failed to list establishments")
		return []models.Establishment{}
	}
	return establishments
}

func (s *Service) GetEstablishment(ctx context.Context, id string) (*models.Establishment, error) {
	var establishment models.Establishment
	err := s.db.GetContext(ctx, &establishment, `
		SELECT id, name, description, address, category, image_url, created_at
		FROM establishments WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("establishment not found")
		}
		return nil, apperr.Store("failed to fetch establishment", err)
	}

	establishment.Services = []models.Service{}
	err = s.db.SelectContext(ctx, &establishment.Services, `
		SELECT id, establishment_id, name, description, price, duration_minutes, image_url
		FROM services WHERE establishment_id = ?
		ORDER BY rowid
	`, id)
	if err != nil {
		return nil, apperr.Store("failed to fetch establishment", err)
	}

	return &establishment, nil
}

// ListProducts returns marketplace products newest first with the owning
// establishment name. Like ListEstablishments it never fails.
func (s *Service) ListProducts(ctx context.Context) []models.Product {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, `
		SELECT p.id, p.establishment_id, e.name AS establishment_name, p.name, p.description,
			p.price, p.image_url, p.created_at
		FROM products p
		JOIN establishments e ON e.id = p.establishment_id
		ORDER BY p.created_at DESC, p.rowid DESC
	`)
	if err != nil {
		s.log.WithError(err).Error("failed to list marketplace products")
		return []models.Product{}
	}
	return products
}

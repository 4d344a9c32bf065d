package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/models"
)

const defaultServiceDuration = 30

type ServiceInput struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"durationMinutes"`
	ImageURL        *string `json:"imageUrl"`
}

type EstablishmentInput struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Address     string         `json:"address"`
	Category    string         `json:"category"`
	ImageURL    *string        `json:"imageUrl"`
	Services    []ServiceInput `json:"services"`
}

type ProductInput struct {
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	Price             float64 `json:"price"`
	ImageURL          *string `json:"imageUrl"`
	EstablishmentName string  `json:"establishmentName"`
}

// AllBookings lists every appointment with its user, service and
// establishment, latest date first.
func (s *Service) AllBookings(ctx context.Context) ([]models.Appointment, error) {
	return s.bookings(ctx, true, bookingSelect+` ORDER BY a.date DESC, a.rowid DESC`)
}

// CreateEstablishment inserts an establishment and its services in one
// transaction.
func (s *Service) CreateEstablishment(ctx context.Context, in EstablishmentInput) (*models.Establishment, error) {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Address) == "" {
		return nil, apperr.NewInvalid("name and address are required")
	}

	establishment := &models.Establishment{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Address:     in.Address,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		CreatedAt:   s.now().UTC(),
		Services:    make([]models.Service, 0, len(in.Services)),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Store("failed to create establishment", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO establishments (id, name, description, address, category, image_url, created_at)
		VALUES (:id, :name, :description, :address, :category, :image_url, :created_at)
	`, establishment)
	if err != nil {
		return nil, apperr.Store("failed to create establishment", err)
	}

	for _, si := range in.Services {
		svc := models.Service{
			ID:              uuid.NewString(),
			EstablishmentID: establishment.ID,
			Name:            si.Name,
			Description:     si.Description,
			Price:           si.Price,
			DurationMinutes: si.DurationMinutes,
			ImageURL:        si.ImageURL,
		}
		if svc.DurationMinutes <= 0 {
			svc.DurationMinutes = defaultServiceDuration
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO services (id, establishment_id, name, description, price, duration_minutes, image_url)
			VALUES (:id, :establishment_id, :name, :description, :price, :duration_minutes, :image_url)
		`, svc)
		if err != nil {
			return nil, apperr.Store("failed to create establishment", err)
		}
		establishment.Services = append(establishment.Services, svc)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Store("failed to create establishment", err)
	}
	return establishment, nil
}

// CreateProduct attaches a product to the establishment with the given name.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if strings.TrimSpace(in.Name) == "" || in.Price <= 0 || strings.TrimSpace(in.EstablishmentName) == "" {
		return nil, apperr.NewInvalid("name, price and establishment name are required")
	}

	var establishmentID string
	err := s.db.GetContext(ctx, &establishmentID,
		`SELECT id FROM establishments WHERE name = ? ORDER BY created_at LIMIT 1`, in.EstablishmentName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NewNotFound("establishment not found")
		}
		return nil, apperr.Store("failed to create product", err)
	}

	product := &models.Product{
		ID:                uuid.NewString(),
		EstablishmentID:   establishmentID,
		EstablishmentName: in.EstablishmentName,
		Name:              in.Name,
		Description:       in.Description,
		Price:             in.Price,
		ImageURL:          in.ImageURL,
		CreatedAt:         s.now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO products (id, establishment_id, name, description, price, image_url, created_at)
		VALUES (:id, :establishment_id, :name, :description, :price, :image_url, :created_at)
	`, product)
	if err != nil {
		return nil, apperr.Store("failed to create product", err)
	}
	return product, nil
}

package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/auth"
	"github.com/vivenzalife/vivenza/internal/models"
)

const bookingSelect = `
	SELECT a.id, a.user_id, a.service_id, a.establishment_id, a.date, a.status, a.created_at,
		s.name AS service_name, s.description AS service_description, s.price AS service_price,
		s.duration_minutes AS service_duration, s.image_url AS service_image_url,
		e.name AS establishment_name, e.description AS establishment_description,
		e.address AS establishment_address, e.category AS establishment_category,
		e.image_url AS establishment_image_url, e.created_at AS establishment_created_at,
		u.name AS user_name, u.email AS user_email, u.image AS user_image, u.created_at AS user_created_at
	FROM appointments a
	JOIN services s ON s.id = a.service_id
	JOIN establishments e ON e.id = a.establishment_id
	JOIN users u ON u.id = a.user_id
`

type bookingRow struct {
	models.Appointment
	ServiceName              string    `db:"service_name"`
	ServiceDescription       string    `db:"service_description"`
	ServicePrice             float64   `db:"service_price"`
	ServiceDuration          int       `db:"service_duration"`
	ServiceImageURL          *string   `db:"service_image_url"`
	EstablishmentName        string    `db:"establishment_name"`
	EstablishmentDescription string    `db:"establishment_description"`
	EstablishmentAddress     string    `db:"establishment_address"`
	EstablishmentCategory    string    `db:"establishment_category"`
	EstablishmentImageURL    *string   `db:"establishment_image_url"`
	EstablishmentCreatedAt   time.Time `db:"establishment_created_at"`
	UserName                 string    `db:"user_name"`
	UserEmail                string    `db:"user_email"`
	UserImage                *string   `db:"user_image"`
	UserCreatedAt            time.Time `db:"user_created_at"`
}

func (r bookingRow) toModel(withUser bool) models.Appointment {
	a := r.Appointment
	a.Service = &models.Service{
		ID:              r.ServiceID,
		EstablishmentID: r.EstablishmentID,
		Name:            r.ServiceName,
		Description:     r.ServiceDescription,
		Price:           r.ServicePrice,
		DurationMinutes: r.ServiceDuration,
		ImageURL:        r.ServiceImageURL,
	}
	a.Establishment = &models.Establishment{
		ID:          r.EstablishmentID,
		Name:        r.EstablishmentName,
		Description: r.EstablishmentDescription,
		Address:     r.EstablishmentAddress,
		Category:    r.EstablishmentCategory,
		ImageURL:    r.EstablishmentImageURL,
		CreatedAt:   r.EstablishmentCreatedAt,
	}
	if withUser {
		a.User = &models.User{
			ID:        r.UserID,
			Name:      r.UserName,
			Email:     r.UserEmail,
			Image:     r.UserImage,
			CreatedAt: r.UserCreatedAt,
		}
	}
	return a
}

// CreateBooking books a service of an establishment for the caller. Bookings
// are confirmed immediately; slots are not checked for overlap.
func (s *Service) CreateBooking(ctx context.Context, callerID, serviceID, establishmentID string, date time.Time) (*models.Appointment, error) {
	if err := auth.RequireCaller(callerID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, apperr.NewInvalid("date is required")
	}

	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM services WHERE id = ? AND establishment_id = ?)`, serviceID, establishmentID)
	if err != nil {
		return nil, apperr.Store("failed to create booking", err)
	}
	if !exists {
		return nil, apperr.NewNotFound("service not found for establishment")
	}

	appointment := &models.Appointment{
		ID:              uuid.NewString(),
		UserID:          callerID,
		ServiceID:       serviceID,
		EstablishmentID: establishmentID,
		Date:            date.UTC(),
		Status:          models.AppointmentConfirmed,
		CreatedAt:       s.now().UTC(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO appointments (id, user_id, service_id, establishment_id, date, status, created_at)
		VALUES (:id, :user_id, :service_id, :establishment_id, :date, :status, :created_at)
	`, appointment)
	if err != nil {
		return nil, apperr.Store("failed to create booking", err)
	}

	return appointment, nil
}

// ListBookings returns the caller's bookings, latest date first. Anonymous
// callers get an empty list.
func (s *Service) ListBookings(ctx context.Context, callerID string) ([]models.Appointment, error) {
	if !auth.HasCaller(callerID) {
		return []models.Appointment{}, nil
	}
	return s.bookings(ctx, false, bookingSelect+` WHERE a.user_id = ? ORDER BY a.date DESC, a.rowid DESC`, callerID)
}

func (s *Service) bookings(ctx context.Context, withUser bool, query string, args ...any) ([]models.Appointment, error) {
	var rows []bookingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.Store("failed to fetch bookings", err)
	}
	out := make([]models.Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel(withUser))
	}
	return out, nil
}

func (s *Service) CancelBooking(ctx context.Context, callerID, bookingID string) error {
	if err := auth.RequireCaller(callerID); err != nil {
		return err
	}

	var owner string
	err := s.db.GetContext(ctx, &owner, `SELECT user_id FROM appointments WHERE id = ?`, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NewNotFound("booking not found")
		}
		return apperr.Store("failed to cancel booking", err)
	}
	if owner != callerID {
		return apperr.NewForbidden("can only cancel own bookings")
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, bookingID)
	return apperr.Store("failed to cancel booking", err)
}

package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/nabil-haroun/bookably/libs/db"
)

// Notification is one delivery attempt, recorded whether it succeeded or not.
type Notification struct {
	AppointmentID string
	BusinessID    string
	EventType     string
	Channel       string
	Recipient     string
	Payload       []byte
	Status        string
	FailureReason string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	var reason *string
	if n.FailureReason != "" {
		reason = &n.FailureReason
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (appointment_id, business_id, event_type, channel, recipient, payload, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.AppointmentID, n.BusinessID, n.EventType, n.Channel, n.Recipient, n.Payload, n.Status, reason)
	return err
}

type ClientContact struct {
	Name  string
	Email string
	Phone string
}

// GetClientContact reads the client's delivery addresses from the shared
// platform database.
func (r *Repository) GetClientContact(ctx context.Context, businessID, clientID string) (ClientContact, bool, error) {
	var c ClientContact
	err := r.pool.QueryRow(ctx, `
		SELECT name, COALESCE(email, ''), COALESCE(phone, '')
		FROM clients
		WHERE business_id = $1 AND id = $2
	`, businessID, clientID).Scan(&c.Name, &c.Email, &c.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ClientContact{}, false, nil
		}
		return ClientContact{}, false, err
	}
	return c, true, nil
}

// GetBusinessName is used to brand the message subject line.
func (r *Repository) GetBusinessName(ctx context.Context, businessID string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT name FROM businesses WHERE id = $1
	`, businessID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return name, err
}

package connection

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/db"
)

var ErrRequestNotFound = apperr.NotFound("Connection Request not found or already reviewed")

type Store interface {
	CreateRequest(ctx context.Context, req *Request) error
	// ReviewRequest moves an interested edge addressed to toUserID to status.
	ReviewRequest(ctx context.Context, requestID, toUserID uuid.UUID, status Status) (*Request, error)
	ListReceived(ctx context.Context, userID uuid.UUID) ([]Request, error)
	AreConnected(ctx context.Context, a, b uuid.UUID) (bool, error)
	ConnectedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// PeerIDs returns everyone userID has an edge with, whatever its status.
	PeerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type Repository struct {
	db *sqlx.DB
}

func NewRepository(conn *sqlx.DB) *Repository {
	return &Repository{db: conn}
}

const requestColumns = `id, from_user_id, to_user_id, status, created_at, updated_at`

func (r *Repository) CreateRequest(ctx context.Context, req *Request) error {
	query := `INSERT INTO connection_requests (from_user_id, to_user_id, status)
        VALUES ($1, $2, $3)
        RETURNING id, created_at, updated_at`

	err := r.db.QueryRowxContext(ctx, query, req.FromUserID, req.ToUserID, req.Status).
		Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		switch {
		case db.IsUniqueViolation(err):
			return apperr.ErrRequestExists
		case db.IsCheckViolation(err):
			return apperr.InvalidArgument("invalid connection request")
		case db.IsForeignKeyViolation(err):
			return apperr.ErrUserNotFound
		}
		return errors.Wrap(err, "connectionRepo.CreateRequest")
	}
	return nil
}

func (r *Repository) ReviewRequest(ctx context.Context, requestID, toUserID uuid.UUID, status Status) (*Request, error) {
	req := &Request{}
	err := r.db.GetContext(ctx, req, `UPDATE connection_requests
        SET status = $3, updated_at = now()
        WHERE id = $1 AND to_user_id = $2 AND status = 'interested'
        RETURNING `+requestColumns, requestID, toUserID, status)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrRequestNotFound
		}
		return nil, errors.Wrap(err, "connectionRepo.ReviewRequest")
	}
	return req, nil
}

func (r *Repository) ListReceived(ctx context.Context, userID uuid.UUID) ([]Request, error) {
	var reqs []Request
	err := r.db.SelectContext(ctx, &reqs, `SELECT `+requestColumns+` FROM connection_requests
        WHERE to_user_id = $1 AND status = 'interested'
        ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "connectionRepo.ListReceived")
	}
	return reqs, nil
}

func (r *Repository) AreConnected(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (
            SELECT 1 FROM connection_requests
            WHERE status = 'accepted'
              AND ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))
        )`, a, b)
	if err != nil {
		return false, errors.Wrap(err, "connectionRepo.AreConnected")
	}
	return ok, nil
}

func (r *Repository) ConnectedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT CASE WHEN from_user_id = $1 THEN to_user_id ELSE from_user_id END
        FROM connection_requests
        WHERE status = 'accepted' AND (from_user_id = $1 OR to_user_id = $1)`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "connectionRepo.ConnectedIDs")
	}
	return ids, nil
}

func (r *Repository) PeerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `SELECT CASE WHEN from_user_id = $1 THEN to_user_id ELSE from_user_id END
        FROM connection_requests
        WHERE from_user_id = $1 OR to_user_id = $1`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "connectionRepo.PeerIDs")
	}
	return ids, nil
}

package connection

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/srinumudili/CodeMate/internal/apperr"
	"github.com/srinumudili/CodeMate/internal/user"
)

type Service struct {
	repo  Store
	users user.Store
}

func NewService(repo Store, users user.Store) *Service {
	return &Service{repo: repo, users: users}
}

func (s *Service) SendRequest(ctx context.Context, from, to uuid.UUID, status Status) (*Request, error) {
	status = Status(strings.ToLower(strings.TrimSpace(string(status))))
	if status != StatusInterested && status != StatusIgnored {
		return nil, apperr.InvalidArgument(fmt.Sprintf("Invalid Status Type %s", status))
	}
	if from == to {
		return nil, apperr.InvalidArgument("You cannot send a connection request to yourself")
	}
	if _, err := s.users.GetUserByID(ctx, to); err != nil {
		return nil, err
	}

	req := &Request{FromUserID: from, ToUserID: to, Status: status}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) ReviewRequest(ctx context.Context, reviewer, requestID uuid.UUID, status Status) (*Request, error) {
	status = Status(strings.ToLower(strings.TrimSpace(string(status))))
	if status != StatusAccepted && status != StatusRejected {
		return nil, apperr.InvalidArgument(fmt.Sprintf("Invalid status type: %s", status))
	}
	return s.repo.ReviewRequest(ctx, requestID, reviewer, status)
}

func (s *Service) ReceivedRequests(ctx context.Context, userID uuid.UUID) ([]ReceivedRequest, error) {
	reqs, err := s.repo.ListReceived(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.FromUserID)
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*user.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}

	out := make([]ReceivedRequest, 0, len(reqs))
	for _, r := range reqs {
		u, ok := byID[r.FromUserID]
		if !ok {
			continue
		}
		out = append(out, ReceivedRequest{Request: r, From: u.Profile()})
	}
	return out, nil
}

// AreConnected reports whether an accepted edge joins a and b in either direction.
func (s *Service) AreConnected(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if a == b {
		return false, nil
	}
	return s.repo.AreConnected(ctx, a, b)
}

func (s *Service) ConnectedIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.ConnectedIDs(ctx, userID)
}

func (s *Service) Connections(ctx context.Context, userID uuid.UUID) ([]user.Profile, error) {
	ids, err := s.repo.ConnectedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return profiles(users), nil
}

// Feed lists users with no edge to userID, excluding userID itself.
func (s *Service) Feed(ctx context.Context, userID uuid.UUID, page, limit int) ([]user.Profile, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	hidden, err := s.repo.PeerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	hidden = append(hidden, userID)

	users, err := s.users.ListUsersExcept(ctx, hidden, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	return profiles(users), nil
}

func profiles(users []user.User) []user.Profile {
	out := make([]user.Profile, 0, len(users))
	for i := range users {
		out = append(out, users[i].Profile())
	}
	return out
}

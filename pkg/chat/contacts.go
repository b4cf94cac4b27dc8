package chat

import (
	"context"

	"github.com/mahaj/chunkchat/pkg/model"
	"go.uber.org/zap"
)

// Contacts lists the rooms userID took part in, most recent first.
func (s *Service) Contacts(ctx context.Context, userID string) ([]model.RoomSummary, error) {
	rooms, ok, err := s.cache.Contacts(ctx, userID)
	if err != nil {
		s.log.Warn("read cached contacts", zap.String("user", userID), zap.Error(err))
	}
	if ok {
		return rooms, nil
	}

	rooms, err = s.store.ListRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rooms == nil {
		rooms = []model.RoomSummary{}
	}
	if err := s.cache.SetContacts(ctx, userID, rooms); err != nil {
		s.log.Warn("cache contacts", zap.String("user", userID), zap.Error(err))
	}
	return rooms, nil
}

// Presence lists the users connected to roomID.
func (s *Service) Presence(ctx context.Context, roomID string) ([]string, error) {
	users, err := s.cache.RoomUsers(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}

// Status reports whether userID has a live connection.
func (s *Service) Status(ctx context.Context, userID string) string {
	st, ok, err := s.cache.Status(ctx, userID)
	if err != nil || !ok {
		return StatusOffline
	}
	return st
}

package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"oarchat-service/internal/mocks"
	"oarchat-service/internal/models"
	"oarchat-service/internal/ws"
)

func TestValidUserID(t *testing.T) {
	assert.True(t, ValidUserID("u1"))
	assert.False(t, ValidUserID(""))
	assert.False(t, ValidUserID("   "))
	assert.False(t, ValidUserID("null"))
}

func TestEditUserRejectsInvalidID(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, ws.NewHub(nopLogger()), nopLogger())

	peer := &mocks.PeerMock{ID: "null", Conn: "conn-1"}
	_, err := handler.EditUser(context.Background(), peer, models.UserProfile{UserID: "null", Username: "pirate"})
	require.ErrorIs(t, err, ErrInvalidUserID)

	userRepo.AssertNotCalled(t, "SaveProfile", mock.Anything, mock.Anything, mock.Anything)
}

func TestEditUserRejectsTakenUsername(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewUserHandler(userRepo, ws.NewHub(nopLogger()), nopLogger())

	userRepo.On("UsernameTaken", mock.Anything, "pirate", "u1").Return(true, nil).Once()

	peer := &mocks.PeerMock{ID: "u1", Conn: "conn-1"}
	_, err := handler.EditUser(context.Background(), peer, models.UserProfile{UserID: "u1", Username: "pirate"})
	require.ErrorIs(t, err, ErrUsernameTaken)

	userRepo.AssertNotCalled(t, "SaveProfile", mock.Anything, mock.Anything, mock.Anything)
	userRepo.AssertExpectations(t)
}

func TestEditUserBroadcastsToOthers(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	hub := ws.NewHub(nopLogger())
	handler := NewUserHandler(userRepo, hub, nopLogger())

	saved := models.User{ID: "u1", Name: "Jack", Username: "pirate", IsOnline: true}
	userRepo.On("UsernameTaken", mock.Anything, "pirate", "u1").Return(false, nil).Once()
	userRepo.On("SaveProfile", mock.Anything, models.UserProfile{UserID: "u1", Name: "Jack", Username: "pirate"}, "conn-1").
		Return(saved, nil).Once()

	editor := &mocks.PeerMock{ID: "u1", Conn: "conn-1"}
	other := &mocks.PeerMock{ID: "u2", Conn: "conn-2"}
	other.On("Emit", EventUserDataUpdate, saved).Return(nil).Once()
	hub.Bind("u1", editor)
	hub.Bind("u2", other)

	user, err := handler.EditUser(context.Background(), editor, models.UserProfile{UserID: "u1", Name: "Jack", Username: "pirate"})
	require.NoError(t, err)
	assert.Equal(t, saved, user)

	// The editing user must not receive their own broadcast.
	editor.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
	other.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

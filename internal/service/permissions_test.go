package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mentorship-chat/internal/directory"
)

func TestCanModifyMessage(t *testing.T) {
	require.True(t, CanModifyMessage(directory.RoleStudent, 1, 1))
	require.False(t, CanModifyMessage(directory.RoleStudent, 1, 2))
	require.False(t, CanModifyMessage(directory.RoleMentor, 1, 2))
	require.True(t, CanModifyMessage(directory.RoleAdmin, 1, 2))
}

func TestCanApproveChat(t *testing.T) {
	require.False(t, CanApproveChat(directory.RoleStudent))
	require.True(t, CanApproveChat(directory.RoleSenior))
	require.True(t, CanApproveChat(directory.RoleMentor))
	require.True(t, CanApproveChat(directory.RoleAdmin))
	require.False(t, CanApproveChat(""))
}

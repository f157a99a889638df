package service

import "mentorship-chat/internal/directory"

// CanModifyMessage decides whether an actor may edit or delete a message.
// Admins may act on any message; everyone else only on their own.
func CanModifyMessage(actorRole string, actorID, senderID int) bool {
	if actorRole == directory.RoleAdmin {
		return true
	}
	return actorID == senderID
}

// CanApproveChat gates the approval endpoint by role.
func CanApproveChat(role string) bool {
	switch role {
	case directory.RoleSenior, directory.RoleMentor, directory.RoleAdmin:
		return true
	}
	return false
}

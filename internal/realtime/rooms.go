package realtime

// Room identifiers scope which backend events a connection receives.
// Naming must match the backend's room registry exactly.

// UserRoom returns the room scoped to a single user.
func UserRoom(userID string) string {
	return "user:" + userID
}

// RoleRoom returns the room shared by everyone holding a role.
func RoleRoom(role string) string {
	return "role:" + role
}

// BranchRoom returns the room shared by a branch's staff.
func BranchRoom(branchID string) string {
	return "branch:" + branchID
}

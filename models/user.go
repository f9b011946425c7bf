package models

// UserRole is the role claim carried by access tokens from the identity service.
type UserRole string

const (
	RoleAdmin     UserRole = "admin"
	RoleOrganizer UserRole = "organizer"
	RoleStaff     UserRole = "staff"
	RolePlayer    UserRole = "player"
)

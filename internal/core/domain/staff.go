package domain

// Role is the application-level role of an authenticated person.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleStaff         Role = "staff"
)

// StaffAccount models a member of the practice who may log into the console.
// Accounts are provisioned outside this system.
type StaffAccount struct {
	ID       string `json:"id" bson:"_id,omitempty"`
	Name     string `json:"name" bson:"name"`
	Username string `json:"username" bson:"username"`
	Secret   string `json:"-" bson:"password"`
	Role     Role   `json:"role" bson:"role"`
}

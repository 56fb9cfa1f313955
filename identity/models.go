package identity

// Role is a user's authorization level as reported by the backend.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// IsAdmin reports whether the role grants access to admin-only views.
func (r Role) IsAdmin() bool { return r == RoleAdmin }

// User is the profile record returned by the identity backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Credentials is the result of a successful login or registration.
type Credentials struct {
	User        User   `json:"user"`
	AccessToken string `json:"access_token"`
}

// RegisterRequest is the payload for creating a new account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// ExchangeResult is the session-exchange response: a bearer token with the
// user's profile fields inlined at the top level rather than nested.
type ExchangeResult struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
}

// Profile assembles the inlined fields into a User record.
func (r ExchangeResult) Profile() User {
	return User{
		ID:    r.ID,
		Email: r.Email,
		Name:  r.Name,
		Role:  r.Role,
	}
}

package api

// RegisterRequest is the body of POST /api/v1/auth/register.
type RegisterRequest struct {
	Password string `json:"password" validate:"required"`
	Username string `json:"username" validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
	Name     string `json:"name"     validate:"required"`
}

// LoginRequest is the body of POST /api/v1/auth/login. At least one of
// username or email must be present; the handler enforces that beyond tags.
type LoginRequest struct {
	Password string `json:"password" validate:"required"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"    validate:"omitempty,email"`
}

// UpdateUserRequest is the body of PUT /api/v1/auth/user.
type UpdateUserRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// ErrorResponse is the structured error body: a machine-readable code plus a
// human-readable message. Provider internals never leak through it.
type ErrorResponse struct {
	ErrorName string `json:"error_name"`
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
}

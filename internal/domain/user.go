package domain

import "time"

// User es el registro persistido en el directorio de usuarios.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicUser es la representacion expuesta por la API, sin el hash.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public descarta los campos sensibles del usuario.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Username:  u.Username,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// UserUpdate lista los campos mutables; nil significa "sin cambios".
type UserUpdate struct {
	Name         *string
	Phone        *string
	PasswordHash *string
}

// Empty indica si no hay ningun campo para actualizar.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.PasswordHash == nil
}

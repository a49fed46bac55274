package domain

import "strings"

type User struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	PasswordHash   string  `json:"-"`
	ProfilePicture *string `json:"profile_picture"`
}

// UserUpdate enumera los campos de perfil que se pueden modificar.
// Un puntero nil deja el valor actual.
type UserUpdate struct {
	Name                *string
	Email               *string
	ProfilePicture      *string
	ClearProfilePicture bool
}

// IsEmpty indica si la actualización no cambia nada.
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Email == nil && u.ProfilePicture == nil && !u.ClearProfilePicture
}

// Apply mezcla los campos presentes sobre una copia de user.
func (u UserUpdate) Apply(user User) User {
	if u.Name != nil {
		user.Name = strings.TrimSpace(*u.Name)
	}
	if u.Email != nil {
		user.Email = strings.TrimSpace(*u.Email)
	}
	switch {
	case u.ClearProfilePicture:
		user.ProfilePicture = nil
	case u.ProfilePicture != nil:
		pic := *u.ProfilePicture
		user.ProfilePicture = &pic
	}
	return user
}

// FoldEmail normaliza un email para comparaciones sin distinguir mayúsculas.
func FoldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail compara dos emails sin distinguir mayúsculas.
func SameEmail(a, b string) bool {
	return FoldEmail(a) == FoldEmail(b)
}

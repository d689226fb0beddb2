package models

import "microsight/dashboard-service/internal/role"

type Session struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"name"`
	Role        role.Role `json:"role"`
	Token       string    `json:"-"`
	Profile     Profile   `json:"-"`
}

// Profile carries optional role-specific fields collected at signup.
type Profile struct {
	StaffID     string `json:"staff_id,omitempty"`
	Department  string `json:"department,omitempty"`
	Position    string `json:"position,omitempty"`
	Institution string `json:"institution,omitempty"`
}

func (p Profile) IsZero() bool {
	return p == Profile{}
}

// UserRecord is the persisted form of a session. The token is stored under
// its own key and never appears here.
type UserRecord struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	StaffID     string `json:"staffId,omitempty"`
	Department  string `json:"department,omitempty"`
	Position    string `json:"position,omitempty"`
	Institution string `json:"institution,omitempty"`
}

func RecordFromSession(s Session) UserRecord {
	return UserRecord{
		ID:          s.UserID,
		Email:       s.Email,
		Name:        s.DisplayName,
		Role:        string(s.Role),
		StaffID:     s.Profile.StaffID,
		Department:  s.Profile.Department,
		Position:    s.Profile.Position,
		Institution: s.Profile.Institution,
	}
}

func (r UserRecord) Session(token string) Session {
	return Session{
		UserID:      r.ID,
		Email:       r.Email,
		DisplayName: r.Name,
		Role:        role.Normalize(r.Role),
		Token:       token,
		Profile: Profile{
			StaffID:     r.StaffID,
			Department:  r.Department,
			Position:    r.Position,
			Institution: r.Institution,
		},
	}
}

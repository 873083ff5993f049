package models

import "time"

const (
	SessionActive          = "active"
	SessionPendingRotation = "pending-rotation"
	SessionTerminated      = "terminated"
)

// Session is one authenticated browser session (a login row).
//
// Cookie is the bearer value the client currently presents. NextCookie is
// assigned by the rotation sweep; once the client presents it, it replaces
// Cookie and the old value stops being valid.
type Session struct {
	ID         int64     `db:"appuserlogin_id"         json:"id"`
	UserID     int64     `db:"appuserlogin_appuser_id" json:"user_id"`
	Cookie     string    `db:"appuserlogin_cookie"     json:"-"`
	NextCookie *string   `db:"appuserlogin_nextcookie" json:"-"`
	Done       bool      `db:"appuserlogin_done"       json:"done"`
	CreatedAt  time.Time `db:"appuserlogin_created_at" json:"created_at"`
}

// State derives the lifecycle state from the row's columns.
func (s *Session) State() string {
	switch {
	case s.Done:
		return SessionTerminated
	case s.NextCookie != nil:
		return SessionPendingRotation
	default:
		return SessionActive
	}
}

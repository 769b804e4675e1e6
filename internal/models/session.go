package models

import "time"

// Day identifies the weekend day a session runs on.
type Day string

const (
	DaySaturday Day = "SATURDAY"
	DaySunday   Day = "SUNDAY"
)

// DayOf maps a calendar date onto the session day swept for it. Any date
// other than a Saturday is treated as Sunday.
func DayOf(date time.Time) Day {
	if date.Weekday() == time.Saturday {
		return DaySaturday
	}
	return DaySunday
}

// Session is a fixed weekly time slot of a class with a hard seat cap.
type Session struct {
	ID        string `db:"id" json:"id"`
	ClassID   string `db:"class_id" json:"class_id"`
	CourseID  string `db:"course_id" json:"course_id"`
	Day       Day    `db:"day" json:"day"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
	Capacity  int    `db:"capacity" json:"capacity"`
}

// SessionAvailability is the derived seat ledger for one session.
type SessionAvailability struct {
	SessionID            string `db:"session_id" json:"session_id"`
	ClassID              string `db:"class_id" json:"class_id"`
	ClassName            string `db:"class_name" json:"class_name"`
	CourseID             string `db:"course_id" json:"course_id"`
	Day                  Day    `db:"day" json:"day"`
	StartTime            string `db:"start_time" json:"start_time"`
	EndTime              string `db:"end_time" json:"end_time"`
	Capacity             int    `db:"capacity" json:"capacity"`
	Approved             int    `db:"approved" json:"approved"`
	PendingRegistrations int    `db:"pending_registrations" json:"pending_registrations"`
	PendingReassignments int    `db:"pending_reassignments" json:"pending_reassignments"`
}

// Available returns the signed number of free seats. It goes negative when
// the session is oversubscribed.
func (a SessionAvailability) Available() int {
	return a.Capacity - (a.Approved + a.PendingRegistrations + a.PendingReassignments)
}

// DisplayAvailable clamps Available at zero.
func (a SessionAvailability) DisplayAvailable() int {
	if v := a.Available(); v > 0 {
		return v
	}
	return 0
}

// IsFull reports whether no seat remains.
func (a SessionAvailability) IsFull() bool {
	return a.Available() <= 0
}

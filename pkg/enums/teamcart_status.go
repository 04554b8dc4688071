package enums

import "fmt"

// TeamCartStatus maps to the team_cart_status column.
type TeamCartStatus string

const (
	TeamCartStatusOpen      TeamCartStatus = "open"
	TeamCartStatusLocked    TeamCartStatus = "locked"
	TeamCartStatusConverted TeamCartStatus = "converted"
	TeamCartStatusExpired   TeamCartStatus = "expired"
)

var validTeamCartStatuses = []TeamCartStatus{
	TeamCartStatusOpen,
	TeamCartStatusLocked,
	TeamCartStatusConverted,
	TeamCartStatusExpired,
}

func (s TeamCartStatus) String() string {
	return string(s)
}

func (s TeamCartStatus) IsValid() bool {
	for _, candidate := range validTeamCartStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave the status.
func (s TeamCartStatus) IsTerminal() bool {
	return s == TeamCartStatusConverted || s == TeamCartStatusExpired
}

// CanExpire reports whether the deadline transition applies.
func (s TeamCartStatus) CanExpire() bool {
	return s == TeamCartStatusOpen || s == TeamCartStatusLocked
}

func ParseTeamCartStatus(value string) (TeamCartStatus, error) {
	for _, candidate := range validTeamCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid team cart status %q", value)
}

package ridestate

import (
	"slices"

	"github.com/example/ride-client/internal/models"
)

// Control is an action or widget a view may render.
type Control string

const (
	ControlWaitingSpinner Control = "waiting-spinner"
	ControlChat           Control = "chat"
	ControlShowOTP        Control = "show-otp"
	ControlRoute          Control = "route"
	ControlPay            Control = "pay"
	ControlSummary        Control = "summary"
	ControlHome           Control = "home"
	ControlAccept         Control = "accept"
	ControlReject         Control = "reject"
	ControlStart          Control = "start"
	ControlWaitingTimer   Control = "waiting-timer"
	ControlStops          Control = "stops"
	ControlEnd            Control = "end"
	ControlView           Control = "view"
)

// Controls returns the controls a role may use for a ride in status. The
// result is a fresh slice.
func Controls(role models.Role, status models.Status, kind models.RideKind) []Control {
	switch role {
	case models.RoleAdmin:
		if status.Rank() == 0 {
			return nil
		}
		return []Control{ControlView}
	case models.RoleRider:
		switch status {
		case models.StatusPending:
			return []Control{ControlWaitingSpinner}
		case models.StatusAccepted:
			return []Control{ControlChat, ControlShowOTP}
		case models.StatusInProgress:
			return []Control{ControlChat, ControlRoute}
		case models.StatusCompleted:
			return []Control{ControlPay, ControlSummary}
		case models.StatusRejected:
			return []Control{ControlHome}
		}
	case models.RoleCaptain:
		switch status {
		case models.StatusPending:
			return []Control{ControlAccept, ControlReject}
		case models.StatusAccepted:
			return []Control{ControlChat, ControlStart}
		case models.StatusInProgress:
			out := []Control{ControlChat, ControlWaitingTimer}
			if kind == models.KindReturn {
				out = append(out, ControlStops)
			}
			return append(out, ControlEnd)
		case models.StatusCompleted:
			return []Control{ControlSummary}
		case models.StatusRejected:
			return []Control{ControlHome}
		}
	}
	return nil
}

func Allowed(role models.Role, status models.Status, kind models.RideKind, c Control) bool {
	return slices.Contains(Controls(role, status, kind), c)
}

package models

import (
	"encoding/json"
	"strconv"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Role is the actor kind returned by the profile endpoint. Riders are "user".
type Role string

const (
	RoleRider   Role = "user"
	RoleCaptain Role = "captain"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleRider, RoleCaptain, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated session owner.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// UnmarshalJSON accepts the id under "id", "_id" or "userId"; the backend is
// not consistent between endpoints.
func (a *Actor) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
		UserID  string `json:"userId"`
		Email   string `json:"email"`
		Role    Role   `json:"role"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	a.ID = firstNonEmpty(raw.ID, raw.MongoID, raw.UserID)
	a.Email = raw.Email
	a.Role = raw.Role
	return nil
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Rank orders statuses along the lifecycle. Rejected and completed share the
// terminal rank so neither can be left once reached.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusAccepted:
		return 2
	case StatusInProgress:
		return 3
	case StatusCompleted, StatusRejected:
		return 4
	}
	return 0
}

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusRejected }

type RideKind string

const (
	KindNormal RideKind = "normal"
	KindReturn RideKind = "return"
)

type VehicleType string

const (
	VehicleMoto VehicleType = "moto"
	VehicleAuto VehicleType = "auto"
	VehicleCar  VehicleType = "car"
)

func (v VehicleType) Valid() bool {
	return v == VehicleMoto || v == VehicleAuto || v == VehicleCar
}

type Ride struct {
	ID             string      `json:"id"`
	Pickup         string      `json:"pickup"`
	Destination    string      `json:"destination"`
	Fare           float64     `json:"fare"`
	Status         Status      `json:"status"`
	RiderID        string      `json:"userId,omitempty"`
	CaptainID      string      `json:"captainId,omitempty"`
	OTP            string      `json:"otp,omitempty"`
	Kind           RideKind    `json:"kind,omitempty"`
	VehicleType    VehicleType `json:"vehicleType,omitempty"`
	WaitingSeconds int64       `json:"waitingTime,omitempty"`
	Stops          []string    `json:"stops,omitempty"`
	Distance       float64     `json:"distance,omitempty"`
	Duration       float64     `json:"duration,omitempty"`
	CaptainName    string      `json:"captainName,omitempty"`
	UserName       string      `json:"userName,omitempty"`
	RiderSocketID  string      `json:"usersocketId,omitempty"`
	CaptainSocket  string      `json:"captainsocketId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt,omitempty"`
}

// UnmarshalJSON folds the backend's "_id"/"rideId" spellings into ID and
// defaults an absent kind to normal.
func (r *Ride) UnmarshalJSON(b []byte) error {
	type plain Ride
	var raw struct {
		plain
		MongoID string `json:"_id"`
		RideID  string `json:"rideId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*r = Ride(raw.plain)
	r.ID = firstNonEmpty(r.ID, raw.MongoID, raw.RideID)
	if r.Kind == "" {
		r.Kind = KindNormal
	}
	return nil
}

// FormatFare renders an amount the way every screen shows it, e.g. "₹120".
func FormatFare(v float64) string {
	return "₹" + strconv.FormatFloat(v, 'f', -1, 64)
}

type FareOption struct {
	VehicleType VehicleType `json:"type"`
	Price       float64     `json:"price"`
}

// Offer is an unconfirmed ride pushed to a captain.
type Offer struct {
	Ride       Ride      `json:"ride"`
	ReceivedAt time.Time `json:"received_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
}

func (o *Offer) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}

type ChatMessage struct {
	ID     string    `json:"id"`
	RideID string    `json:"ride_id"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	Self   bool      `json:"self"`
	SentAt time.Time `json:"sent_at"`
}

type Origin string

const (
	OriginPush   Origin = "push"
	OriginPoll   Origin = "poll"
	OriginAction Origin = "action"
)

// Transition records one effective ride status change observed by the client.
type Transition struct {
	RideID  string    `json:"ride_id"`
	ActorID string    `json:"actor_id,omitempty"`
	From    Status    `json:"from"`
	To      Status    `json:"to"`
	Origin  Origin    `json:"origin"`
	At      time.Time `json:"at"`
}

type Dashboard struct {
	TotalEarning float64 `json:"totalEarning"`
	TotalRides   int     `json:"totalRides"`
	RideHistory  []Ride  `json:"rideHistory"`
	IsOnline     bool    `json:"isOnline"`
}

type AdminStats struct {
	Users    int `json:"users"`
	Captains int `json:"captains"`
	Rides    int `json:"rides"`
}

type Vehicle struct {
	Color       string `json:"color"`
	Plate       string `json:"plate"`
	Capacity    int    `json:"capacity"`
	VehicleType string `json:"vehicleType"`
}

type CaptainDetail struct {
	Captain struct {
		ID         string  `json:"_id"`
		FirstName  string  `json:"firstName"`
		LastName   string  `json:"lastName"`
		Email      string  `json:"email"`
		IsVerified bool    `json:"isVerified"`
		Vehicle    Vehicle `json:"vehicle"`
	} `json:"captain"`
	Documents map[string]string `json:"documents"`
}

// CaptainVerification is a captain's own view of their uploaded documents
// and review status.
type CaptainVerification struct {
	ID           string `json:"_id"`
	AadhaarFront string `json:"aadhaarFront,omitempty"`
	AadhaarBack  string `json:"aadhaarBack,omitempty"`
	PanCard      string `json:"panCard,omitempty"`
	LicenseFront string `json:"licenseFront,omitempty"`
	LicenseBack  string `json:"licenseBack,omitempty"`
	RCFront      string `json:"rcFront,omitempty"`
	RCBack       string `json:"rcBack,omitempty"`
	ProfilePhoto string `json:"profilePhoto,omitempty"`
	Captain      struct {
		ID            string  `json:"_id"`
		FirstName     string  `json:"firstName"`
		LastName      string  `json:"lastname"`
		Email         string  `json:"email"`
		Status        string  `json:"status"`
		IsVerified    bool    `json:"isverified"`
		TotalEarnings float64 `json:"totalEarnings"`
	} `json:"captain"`
}

// Documents lists the uploaded document urls by label, skipping missing
// ones.
func (v CaptainVerification) Documents() [][2]string {
	all := [][2]string{
		{"Aadhaar Front", v.AadhaarFront},
		{"Aadhaar Back", v.AadhaarBack},
		{"PAN Card", v.PanCard},
		{"License Front", v.LicenseFront},
		{"License Back", v.LicenseBack},
		{"RC Front", v.RCFront},
		{"RC Back", v.RCBack},
		{"Profile Photo", v.ProfilePhoto},
	}
	out := all[:0]
	for _, d := range all {
		if d[1] != "" {
			out = append(out, d)
		}
	}
	return out
}

type PaymentOrder struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	RideID   string `json:"rideId,omitempty"`
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

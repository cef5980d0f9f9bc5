package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/example/ride-client/internal/models"
)

type Credentials struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// CaptainRegistration mirrors the backend's captain form, which spells the
// surname field "lastname".
type CaptainRegistration struct {
	FirstName string         `json:"firstName"`
	LastName  string         `json:"lastname"`
	Email     string         `json:"email"`
	Password  string         `json:"password"`
	Vehicle   models.Vehicle `json:"vehicle"`
}

type RideRequest struct {
	Pickup      string             `json:"pickup"`
	Destination string             `json:"destination"`
	VehicleType models.VehicleType `json:"vehicleType"`
	Kind        models.RideKind    `json:"kind,omitempty"`
}

type EndRideRequest struct {
	RideID      string   `json:"rideId"`
	WaitingTime int64    `json:"waitingTime"`
	Stops       []string `json:"stops"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (c *Client) Profile(ctx context.Context) (*models.Actor, error) {
	var a models.Actor
	if err := c.do(ctx, request{method: http.MethodGet, path: "/auth/profile"}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) Login(ctx context.Context, creds Credentials) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: creds}, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/logout"}, nil)
}

func (c *Client) Register(ctx context.Context, r Registration) (string, error) {
	var out messageResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/register", body: r}, &out)
	return out.Message, err
}

func (c *Client) RegisterCaptain(ctx context.Context, r CaptainRegistration) (string, error) {
	var out messageResponse
	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/cap/register", body: r}, &out)
	return out.Message, err
}

func (c *Client) FareEstimate(ctx context.Context, pickup, destination string) ([]models.FareOption, error) {
	var out []models.FareOption
	body := map[string]string{"pickup": pickup, "destination": destination}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/rides/fare", body: body}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateRide(ctx context.Context, r RideRequest) (*models.Ride, error) {
	var out models.Ride
	if err := c.do(ctx, request{method: http.MethodPost, path: "/rides", body: r}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScheduleRide books a return ride, the only kind that accepts stops.
func (c *Client) ScheduleRide(ctx context.Context, r RideRequest) (*models.Ride, error) {
	r.Kind = models.KindReturn
	var out models.Ride
	if err := c.do(ctx, request{method: http.MethodPost, path: "/ride-schedule/scheduleRide", body: r}, &out); err != nil {
		return nil, err
	}
	out.Kind = models.KindReturn
	return &out, nil
}

// CurrentRide looks a ride up by id. An empty id asks the backend for the
// caller's current ride.
func (c *Client) CurrentRide(ctx context.Context, rideID string) (*models.Ride, error) {
	q := url.Values{}
	if rideID != "" {
		q.Set("rideId", rideID)
	}
	var out models.Ride
	if err := c.do(ctx, request{method: http.MethodGet, path: "/rides/currentride", query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ConfirmRide(ctx context.Context, rideID string) error {
	body := map[string]string{"rideId": rideID}
	return c.do(ctx, request{method: http.MethodPost, path: "/rides/confirm", body: body}, nil)
}

func (c *Client) StartRide(ctx context.Context, rideID, otp string) error {
	q := url.Values{"rideId": {rideID}, "otp": {otp}}
	return c.do(ctx, request{method: http.MethodPost, path: "/rides/start", query: q}, nil)
}

func (c *Client) SubmitWaiting(ctx context.Context, rideID string, seconds int64) error {
	body := map[string]any{"rideId": rideID, "waitingTime": seconds}
	return c.do(ctx, request{method: http.MethodPost, path: "/rides/waiting", body: body}, nil)
}

func (c *Client) EndRide(ctx context.Context, r EndRideRequest) (*models.Ride, error) {
	if r.Stops == nil {
		r.Stops = []string{}
	}
	var out models.Ride
	if err := c.do(ctx, request{method: http.MethodPost, path: "/rides/end", body: r}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePayment(ctx context.Context, rideID string) (*models.PaymentOrder, error) {
	var out models.PaymentOrder
	body := map[string]string{"rideId": rideID}
	if err := c.do(ctx, request{method: http.MethodPost, path: "/rides/payment", body: body}, &out); err != nil {
		return nil, err
	}
	if out.RideID == "" {
		out.RideID = rideID
	}
	return &out, nil
}

func (c *Client) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	var out models.Dashboard
	if err := c.do(ctx, request{method: http.MethodGet, path: "/rides/dashboard"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetOnline(ctx context.Context, online bool) error {
	path := "/captain/offline"
	if online {
		path = "/captain/online"
	}
	return c.do(ctx, request{method: http.MethodPost, path: path}, nil)
}

func (c *Client) AdminStats(ctx context.Context) (*models.AdminStats, error) {
	var out models.AdminStats
	if err := c.do(ctx, request{method: http.MethodGet, path: "/admin/stats"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminUsers, AdminCaptains and AdminRides return loosely typed rows; the
// admin tables render whatever columns the backend sends.
func (c *Client) AdminUsers(ctx context.Context) ([]map[string]any, error) {
	return c.adminRows(ctx, "/admin/users")
}

func (c *Client) AdminCaptains(ctx context.Context) ([]map[string]any, error) {
	return c.adminRows(ctx, "/admin/captains")
}

func (c *Client) AdminRides(ctx context.Context) ([]map[string]any, error) {
	return c.adminRows(ctx, "/admin/rides")
}

func (c *Client) adminRows(ctx context.Context, path string) ([]map[string]any, error) {
	var out []map[string]any
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AdminCaptain(ctx context.Context, id string) (*models.CaptainDetail, error) {
	var out models.CaptainDetail
	r := request{method: http.MethodGet, path: "/admin/captains/" + url.PathEscape(id), route: "/admin/captains/{id}"}
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CaptainVerification returns the signed-in captain's document review. The
// backend answers with a list; only the first entry is meaningful.
func (c *Client) CaptainVerification(ctx context.Context) (*models.CaptainVerification, error) {
	var out []models.CaptainVerification
	if err := c.do(ctx, request{method: http.MethodGet, path: "/verified-service/verifyCap"}, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no verification record: %w", ErrNotFound)
	}
	return &out[0], nil
}

func (c *Client) VerifyCaptain(ctx context.Context, captainID string) error {
	body := map[string]string{"captainId": captainID}
	return c.do(ctx, request{method: http.MethodPost, path: "/admin/verify", body: body}, nil)
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	q := url.Values{"userId": {userID}}
	return c.do(ctx, request{method: http.MethodDelete, path: "/admin/users", query: q}, nil)
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/payments"
	"github.com/example/ride-client/internal/realtime"
	"github.com/example/ride-client/internal/ridestate"
	"github.com/example/ride-client/internal/routing"
)

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	role := fs.String("role", string(models.RoleRider), "user, captain or admin")
	if err := parse(fs, args); err != nil {
		return err
	}
	creds := api.Credentials{Email: *email, Password: *password, Role: models.Role(*role)}
	if err := a.holder.Login(ctx, creds); err != nil {
		return err
	}
	actor := a.holder.Actor()
	if actor == nil {
		return errors.New("login accepted but the profile could not be loaded")
	}
	a.printf("signed in as %s (%s), home: %s\n", actor.Email, actor.Role, a.router.Current().View)
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	err := a.holder.Logout(ctx)
	if rmErr := os.Remove(a.cookieFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		a.logger.Warn("remove session cookies failed", "error", rmErr)
	}
	a.printf("signed out\n")
	return err
}

func cmdWhoami(ctx context.Context, a *app, _ []string) error {
	actor, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	return a.print(actor)
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var r api.Registration
	fs.StringVar(&r.FirstName, "first", "", "first name")
	fs.StringVar(&r.LastName, "last", "", "last name")
	fs.StringVar(&r.Email, "email", "", "email")
	fs.StringVar(&r.Password, "password", "", "password")
	if err := parse(fs, args); err != nil {
		return err
	}
	msg, err := a.holder.Register(ctx, r)
	if err != nil {
		return err
	}
	a.printf("%s\nnext: ridectl login -email %s -password ...\n", orDefault(msg, "registered"), r.Email)
	return nil
}

func cmdRegisterCaptain(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("register-captain", flag.ContinueOnError)
	var r api.CaptainRegistration
	fs.StringVar(&r.FirstName, "first", "", "first name")
	fs.StringVar(&r.LastName, "last", "", "last name")
	fs.StringVar(&r.Email, "email", "", "email")
	fs.StringVar(&r.Password, "password", "", "password")
	fs.StringVar(&r.Vehicle.VehicleType, "vehicle", "", "moto, auto or car")
	fs.StringVar(&r.Vehicle.Color, "color", "", "vehicle color")
	fs.StringVar(&r.Vehicle.Plate, "plate", "", "number plate")
	fs.IntVar(&r.Vehicle.Capacity, "capacity", 1, "seats")
	if err := parse(fs, args); err != nil {
		return err
	}
	msg, err := a.holder.RegisterCaptain(ctx, r)
	if err != nil {
		return err
	}
	a.printf("%s\nnext: ridectl login -role captain -email %s -password ...\n", orDefault(msg, "registered"), r.Email)
	return nil
}

func cmdFare(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("fare", flag.ContinueOnError)
	pickup := fs.String("pickup", "", "pickup place")
	destination := fs.String("destination", "", "destination place")
	if err := parse(fs, args); err != nil {
		return err
	}
	deps, err := a.deps(ctx)
	if err != nil {
		return err
	}
	opts, err := ridestate.NewBooker(deps).Estimate(ctx, *pickup, *destination)
	if err != nil {
		return err
	}
	for _, o := range opts {
		a.printf("%-5s %s\n", o.VehicleType, models.FormatFare(o.Price))
	}
	return nil
}

func cmdBook(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	pickup := fs.String("pickup", "", "pickup place")
	destination := fs.String("destination", "", "destination place")
	vehicle := fs.String("vehicle", "", "moto, auto or car")
	schedule := fs.Bool("schedule", false, "book a return ride that accepts stops")
	if err := parse(fs, args); err != nil {
		return err
	}
	deps, err := a.deps(ctx)
	if err != nil {
		return err
	}
	b := ridestate.NewBooker(deps)
	if _, err := b.Estimate(ctx, *pickup, *destination); err != nil {
		return err
	}
	book := b.Book
	if *schedule {
		book = b.Schedule
	}
	ride, err := book(ctx, models.VehicleType(*vehicle))
	if err != nil {
		return err
	}
	a.printf("ride %s requested (%s, %s)\nnext: ridectl watch\n", ride.ID, ride.Status, models.FormatFare(ride.Fare))
	return nil
}

func cmdStatus(ctx context.Context, a *app, _ []string) error {
	t, _, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	ride, err := t.Resolve(ctx)
	if errors.Is(err, ridestate.ErrNoRide) {
		a.printf("no current ride\n")
		return nil
	}
	if err != nil {
		return err
	}
	return a.print(map[string]any{"ride": ride, "controls": t.Controls()})
}

// cmdWatch follows the current ride until it ends, from push events when
// the channel is up and from polling regardless.
func cmdWatch(ctx context.Context, a *app, _ []string) error {
	t, _, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	a.serveMetrics(ctx)
	actor := a.holder.Actor()
	if ch, err := a.channel(ctx, actor); err != nil {
		a.logger.Warn("real-time channel unavailable, polling only", "error", err)
	} else {
		defer t.Bind(ch)()
	}
	defer t.Subscribe(func(r models.Ride) {
		a.printf("%s  ride %s: %s  controls: %v\n", time.Now().Format(time.TimeOnly), r.ID, r.Status, ridestate.Controls(actor.Role, r.Status, r.Kind))
	})()
	if err := t.Watch(ctx); err != nil {
		return err
	}
	if r := t.Current(); r != nil {
		a.printf("ride %s %s\n", r.ID, r.Status)
		if r.Status == models.StatusCompleted {
			a.printf("next: ridectl summary, ridectl pay\n")
		}
	}
	return nil
}

// lines delivers stdin lines until ctx ends or input closes.
func lines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- strings.TrimSpace(sc.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func cmdCaptain(ctx context.Context, a *app, _ []string) error {
	deps, err := a.deps(ctx)
	if err != nil {
		return err
	}
	actor := a.holder.Actor()
	if actor.Role != models.RoleCaptain {
		return fmt.Errorf("captain command needs a captain session, have %s", actor.Role)
	}
	ch, err := a.channel(ctx, actor)
	if err != nil {
		return err
	}
	a.serveMetrics(ctx)
	offers := ridestate.NewOfferBox(deps, a.cfg.OfferTimeout)
	defer offers.Close()
	defer offers.Bind(ch).Cancel()
	defer ch.On(realtime.EventNewRide, func(json.RawMessage) {
		if o := offers.Current(); o != nil {
			a.printf("offer %s: %s -> %s, %s  (accept / reject)\n", o.Ride.ID, o.Ride.Pickup, o.Ride.Destination, models.FormatFare(o.Ride.Fare))
		}
	}).Cancel()

	a.printf("waiting for ride requests; type accept, reject or quit\n")
	in := lines(ctx, os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-in:
			if !ok || line == "quit" {
				return nil
			}
			switch line {
			case "accept":
				ride, err := offers.Accept(ctx)
				if err != nil {
					a.printf("accept failed: %v\n", err)
					continue
				}
				a.printf("ride %s accepted\nnext: ridectl start -otp <rider otp>, ridectl chat\n", ride.ID)
				return nil
			case "reject":
				if err := offers.Reject(); err != nil {
					a.printf("reject failed: %v\n", err)
				}
			case "":
			default:
				a.printf("unknown input %q\n", line)
			}
		}
	}
}

func cmdStart(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	otp := fs.String("otp", "", "OTP shown to the rider")
	if err := parse(fs, args); err != nil {
		return err
	}
	t, _, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	if err := t.StartRide(ctx, *otp); err != nil {
		return err
	}
	a.printf("ride started\n")
	return nil
}

func cmdChat(ctx context.Context, a *app, _ []string) error {
	t, _, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	ride, err := t.Resolve(ctx)
	if err != nil {
		return err
	}
	actor := a.holder.Actor()
	ch, err := a.channel(ctx, actor)
	if err != nil {
		return err
	}
	if err := ch.JoinRoom(ctx, ride.ID); err != nil {
		return err
	}
	room := ridestate.NewChatRoom(*ride, actor.Role, ch, a.logger)
	defer room.Bind(ch).Cancel()
	defer room.Subscribe(func(m models.ChatMessage) {
		if !m.Self {
			a.printf("%s: %s\n", m.Sender, m.Text)
		}
	})()

	a.printf("chat for ride %s; type a message, or quit\n", ride.ID)
	in := lines(ctx, os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-in:
			if !ok || line == "quit" {
				return nil
			}
			if line == "" {
				continue
			}
			if _, err := room.Send(ctx, line); err != nil {
				a.printf("send failed: %v\n", err)
			}
		}
	}
}

func cmdEnd(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("end", flag.ContinueOnError)
	var stops stringList
	fs.Var(&stops, "stop", "stop visited on a return ride (repeatable)")
	if err := parse(fs, args); err != nil {
		return err
	}
	t, _, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	if _, err := t.Resolve(ctx); err != nil {
		return err
	}
	for _, s := range stops {
		if err := t.Stops().Add(s); err != nil {
			return err
		}
	}
	ride, err := t.EndRide(ctx)
	if err != nil {
		return err
	}
	a.printf("ride %s %s, fare %s\n", ride.ID, ride.Status, models.FormatFare(ride.Fare))
	return nil
}

func cmdPay(ctx context.Context, a *app, _ []string) error {
	t, _, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	checkout := a.checkout(payments.LogLauncher{Logger: a.logger})
	if checkout == nil {
		return errors.New("no payment gateway configured (RAZORPAY_KEY or STRIPE_API_KEY)")
	}
	if _, err := t.Resolve(ctx); err != nil {
		return err
	}
	order, err := t.Pay(ctx, checkout)
	if err != nil {
		return err
	}
	a.printf("order %s for %s %d\ncomplete it at %s\n", order.OrderID, order.Currency, order.Amount,
		payments.CheckoutURL(viewBase(a.cfg.ViewAddr), *order))
	return nil
}

func viewBase(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func cmdSummary(ctx context.Context, a *app, _ []string) error {
	t, _, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	ride, err := t.Resolve(ctx)
	if err != nil {
		return err
	}
	a.printf("ride        %s (%s)\n", ride.ID, ride.Status)
	a.printf("from        %s\n", ride.Pickup)
	a.printf("to          %s\n", ride.Destination)
	a.printf("fare        %s\n", models.FormatFare(ride.Fare))
	if ride.WaitingSeconds > 0 {
		a.printf("waiting     %s\n", time.Duration(ride.WaitingSeconds)*time.Second)
	}
	for i, s := range ride.Stops {
		a.printf("stop %-6d %s\n", i+1, s)
	}
	p, err := a.routing()
	if err != nil {
		return nil
	}
	if r, err := routing.RouteBetween(ctx, p, ride.Pickup, ride.Destination); err != nil {
		a.logger.Debug("summary route unavailable", "error", err)
	} else {
		a.printf("distance    %.1f km\n", r.Distance/1000)
		a.printf("duration    about %s\n", r.Duration.Round(time.Minute))
	}
	return nil
}

func cmdProfile(ctx context.Context, a *app, _ []string) error {
	actor, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleCaptain {
		return fmt.Errorf("profile needs a captain session, have %s", actor.Role)
	}
	v, err := a.api.CaptainVerification(ctx)
	if err != nil {
		return err
	}
	state := "Pending Verification"
	if v.Captain.IsVerified {
		state = "Verified"
	}
	a.printf("%s %s <%s>\n", v.Captain.FirstName, v.Captain.LastName, v.Captain.Email)
	a.printf("status      %s (%s)\n", orDefault(v.Captain.Status, "unknown"), state)
	a.printf("earnings    %s\n", models.FormatFare(v.Captain.TotalEarnings))
	docs := v.Documents()
	if len(docs) == 0 {
		a.printf("no documents uploaded\n")
	}
	for _, d := range docs {
		a.printf("%-13s %s\n", d[0], d[1])
	}
	return nil
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	rideID := fs.String("ride", "", "ride id (default: the current ride)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *rideID == "" {
		t, _, err := a.tracker(ctx)
		if err != nil {
			return err
		}
		if *rideID, err = t.RideID(ctx); err != nil {
			return err
		}
		if *rideID == "" {
			return ridestate.ErrNoRide
		}
	}
	pj, err := a.postgres(ctx)
	if err != nil {
		return err
	}
	trs, err := pj.History(ctx, *rideID)
	if err != nil {
		return err
	}
	if len(trs) == 0 {
		a.printf("no transitions recorded for ride %s\n", *rideID)
		return nil
	}
	for _, tr := range trs {
		a.printf("%s  %-11s -> %-11s  %-6s  %s\n", tr.At.Format(time.DateTime), tr.From, tr.To, tr.Origin, tr.ActorID)
	}
	return nil
}

func cmdRoute(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	from := fs.String("from", "", "pickup place")
	to := fs.String("to", "", "destination place")
	if err := parse(fs, args); err != nil {
		return err
	}
	p, err := a.routing()
	if err != nil {
		return err
	}
	r, err := routing.RouteBetween(ctx, p, *from, *to)
	if err != nil {
		return err
	}
	a.printf("%.1f km, about %s, %d points\n", r.Distance/1000, r.Duration.Round(time.Minute), len(r.Path))
	return nil
}

func cmdDashboard(ctx context.Context, a *app, _ []string) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	d, err := a.api.Dashboard(ctx)
	if err != nil {
		return err
	}
	a.printf("online %v, %d rides, earned %s\n", d.IsOnline, d.TotalRides, models.FormatFare(d.TotalEarning))
	for _, r := range d.RideHistory {
		a.printf("  %s  %s -> %s  %s  %s\n", r.ID, r.Pickup, r.Destination, models.FormatFare(r.Fare), r.Status)
	}
	return nil
}

func cmdOnline(ctx context.Context, a *app, _ []string) error  { return setOnline(ctx, a, true) }
func cmdOffline(ctx context.Context, a *app, _ []string) error { return setOnline(ctx, a, false) }

func setOnline(ctx context.Context, a *app, online bool) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	if err := a.api.SetOnline(ctx, online); err != nil {
		return err
	}
	a.printf("online: %v\n", online)
	return nil
}

func cmdAdmin(ctx context.Context, a *app, args []string) error {
	actor, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	if actor.Role != models.RoleAdmin {
		return fmt.Errorf("admin commands need an admin session, have %s", actor.Role)
	}
	if len(args) == 0 {
		return errUsage
	}
	arg := func() (string, error) {
		if len(args) < 2 || args[1] == "" {
			return "", fmt.Errorf("admin %s needs an id: %w", args[0], api.ErrInvalidInput)
		}
		return args[1], nil
	}
	switch args[0] {
	case "stats":
		s, err := a.api.AdminStats(ctx)
		if err != nil {
			return err
		}
		return a.print(s)
	case "users", "captains", "rides":
		fetch := map[string]func(context.Context) ([]map[string]any, error){
			"users":    a.api.AdminUsers,
			"captains": a.api.AdminCaptains,
			"rides":    a.api.AdminRides,
		}[args[0]]
		rows, err := fetch(ctx)
		if err != nil {
			return err
		}
		return a.print(rows)
	case "captain":
		id, err := arg()
		if err != nil {
			return err
		}
		c, err := a.api.AdminCaptain(ctx, id)
		if err != nil {
			return err
		}
		return a.print(c)
	case "verify":
		id, err := arg()
		if err != nil {
			return err
		}
		if err := a.api.VerifyCaptain(ctx, id); err != nil {
			return err
		}
		a.printf("captain %s verified\n", id)
		return nil
	case "delete-user":
		id, err := arg()
		if err != nil {
			return err
		}
		if err := a.api.DeleteUser(ctx, id); err != nil {
			return err
		}
		a.printf("user %s deleted\n", id)
		return nil
	}
	return errUsage
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"roadguard/internal/chart"
	"roadguard/internal/dashboard"
	"roadguard/internal/events"
	"roadguard/internal/models"
	"roadguard/internal/notify"
)

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

// oneArg parses fs and returns its single positional argument
func oneArg(fs *pflag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return "", fmt.Errorf("usage: roadguard %s <%s>", fs.Name(), what)
	}
	return fs.Arg(0), nil
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal for a password prompt, use --password")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func (a *app) done(format string, args ...interface{}) {
	fmt.Fprintln(a.out, okStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}

// ─── Session ──────────────────────────────────────────────────────────────

func runLogin(a *app, args []string) error {
	fs := newFlags("login")
	email := fs.StringP("email", "e", "", "Account email")
	password := fs.StringP("password", "p", "", "Password (prompted when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" && fs.NArg() > 0 {
		*email = fs.Arg(0)
	}
	if *email == "" {
		return errors.New("usage: roadguard login --email <email>")
	}
	if *password == "" {
		p, err := readPassword()
		if err != nil {
			return err
		}
		*password = p
	}

	tok, err := a.api.Login(context.Background(), *email, *password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	sess, err := a.store.Login(tok.AccessToken, tok.Role, *email)
	if err != nil {
		return err
	}
	a.done("Signed in as %s (%s)", sess.Email, sess.Role)
	return nil
}

func runLogout(a *app, args []string) error {
	if a.store.Current() == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	if err := a.store.Logout(); err != nil {
		return err
	}
	a.done("Signed out")
	return nil
}

func runWhoami(a *app, args []string) error {
	sess := a.store.Current()
	if sess == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s (%s)\n", titleStyle.Render(sess.Email), sess.Role)
	if !sess.ExpiresAt.IsZero() {
		fmt.Fprintln(a.out, dimStyle.Render("expires "+sess.ExpiresAt.In(a.loc).Format("Jan 2, 2006 15:04")))
	}
	return nil
}

// ─── Reads ────────────────────────────────────────────────────────────────

func runAlerts(a *app, args []string) error {
	fs := newFlags("alerts")
	limit := fs.IntP("limit", "n", 0, "Show at most this many (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	alerts, err := a.api.ListAlerts(context.Background())
	if err != nil {
		return fmt.Errorf("fetch alerts: %w", err)
	}
	if *limit > 0 {
		alerts = chart.Recent(alerts, *limit)
	}
	a.printAlerts(alerts)
	return nil
}

func runChart(a *app, args []string) error {
	fs := newFlags("chart")
	rangeFlag := fs.StringP("range", "r", string(chart.DefaultRange), "24h, 7d, 30d, 1y or all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rng, err := chart.ParseRange(*rangeFlag)
	if err != nil {
		return err
	}
	alerts, err := a.api.ListAlerts(context.Background())
	if err != nil {
		return fmt.Errorf("fetch alerts: %w", err)
	}
	a.printChart(rng.Title(), chart.Bucketize(alerts, rng, time.Now().In(a.loc)))
	return nil
}

func runCameras(a *app, args []string) error {
	cameras, err := a.api.ListCameras(context.Background())
	if err != nil {
		return fmt.Errorf("fetch cameras: %w", err)
	}
	a.printCameras(cameras)
	return nil
}

func runStreams(a *app, args []string) error {
	streams, err := a.api.ListStreams(context.Background())
	if err != nil {
		return fmt.Errorf("fetch streams: %w", err)
	}
	a.printStreams(streams)
	return nil
}

func runUsers(a *app, args []string) error {
	users, err := a.api.ListUsers(context.Background())
	if err != nil {
		return fmt.Errorf("fetch users: %w", err)
	}
	a.printUsers(users)
	return nil
}

// runWatch mounts the overview until interrupted. Accidents that appear
// after the first fetch are printed as they arrive.
func runWatch(a *app, args []string) error {
	fs := newFlags("watch")
	interval := fs.DurationP("interval", "i", a.pollInterval, "Refresh period")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.watch(ctx, *interval)
}

func (a *app) watch(ctx context.Context, interval time.Duration) error {
	bus := events.NewBus()
	watcher := notify.NewAlertWatcher(bus, a.loc)
	bus.Subscribe(func(e events.Event) {
		fmt.Fprintln(a.out, alertStyle.Render("🚨 "+e.Message))
	}, events.AlertRaised)
	bus.Subscribe(func(e events.Event) {
		fmt.Fprintln(a.out, errorStyle.Render("⚠ "+e.Message+": "+e.Metadata["error"]))
	}, events.FetchFailed)

	actor := ""
	if sess := a.store.Current(); sess != nil {
		actor = sess.Email
	}
	view := dashboard.NewView(dashboard.PageOverview, a.api, dashboard.Options{
		Interval:      interval,
		Bus:           bus,
		Actor:         actor,
		ObserveAlerts: func(alerts []models.Alert) { watcher.Observe(alerts) },
	})
	view.Poller.OnUpdate = func() {
		snap := view.Snapshot(chart.DefaultRange, time.Now())
		if snap.Stats != nil {
			a.printStats(*snap.Stats, time.Now())
		}
	}

	fmt.Fprintln(a.out, dimStyle.Render(fmt.Sprintf("Watching every %s, Ctrl-C to stop", view.Poller.Interval)))
	view.Poller.Start(ctx)
	<-ctx.Done()
	view.Poller.Stop()
	view.Poller.Wait()
	return nil
}

// ─── Alerts ───────────────────────────────────────────────────────────────

func runRaiseAlert(a *app, args []string) error {
	fs := newFlags("raise-alert")
	location := fs.StringP("location", "l", "", "Where the accident happened")
	details := fs.StringP("details", "d", "", "What happened")
	at := fs.String("time", "", "When it happened (RFC 3339, default now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in := models.NewAlert{Location: *location, Details: *details}
	if *at != "" {
		ts, err := models.ParseTimestamp(*at)
		if err != nil {
			return err
		}
		in.Time = &ts
	}
	created, err := a.mutator().CreateAlert(context.Background(), in)
	if err != nil {
		return detailed(err)
	}
	a.done("Alert %s raised at %s", created.ID, created.Location)
	return nil
}

func runDeleteAlert(a *app, args []string) error {
	id, err := oneArg(newFlags("delete-alert"), args, "alert-id")
	if err != nil {
		return err
	}
	if err := a.mutator().DeleteAlert(context.Background(), id); err != nil {
		return detailed(err)
	}
	a.done("Alert %s deleted", id)
	return nil
}

func runClearAlerts(a *app, args []string) error {
	if err := a.mutator().DeleteAllAlerts(context.Background()); err != nil {
		return detailed(err)
	}
	a.done("All alerts deleted")
	return nil
}

// ─── Cameras ──────────────────────────────────────────────────────────────

func runAddCamera(a *app, args []string) error {
	fs := newFlags("add-camera")
	name := fs.StringP("name", "n", "", "Camera name")
	location := fs.StringP("location", "l", "", "Where the camera is")
	url := fs.StringP("url", "u", "", "Stream URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *location == "" {
		return errors.New("usage: roadguard add-camera --name <name> --location <location> [--url <url>]")
	}
	created, err := a.mutator().CreateCamera(context.Background(), models.NewCamera{Name: *name, Location: *location, URL: *url})
	if err != nil {
		return detailed(err)
	}
	a.done("Camera %s added (%s)", created.Name, created.ID)
	return nil
}

func runDeleteCamera(a *app, args []string) error {
	id, err := oneArg(newFlags("delete-camera"), args, "camera-id")
	if err != nil {
		return err
	}
	if err := a.mutator().DeleteCamera(context.Background(), id); err != nil {
		return detailed(err)
	}
	a.done("Camera %s deleted", id)
	return nil
}

func runDetection(a *app, args []string) error {
	fs := newFlags("detection")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 || (fs.Arg(1) != "start" && fs.Arg(1) != "stop") {
		return errors.New("usage: roadguard detection <camera-id> start|stop")
	}
	id, stopping := fs.Arg(0), fs.Arg(1) == "stop"

	active, msg, err := a.mutator().ToggleDetection(context.Background(), id, stopping)
	if err != nil {
		return detailed(err)
	}
	if msg == "" {
		msg = "Detection stopped"
		if active {
			msg = "Detection started"
		}
	}
	a.done("%s", msg)
	return nil
}

// ─── Streams ──────────────────────────────────────────────────────────────

func runStopStream(a *app, args []string) error {
	id, err := oneArg(newFlags("stop-stream"), args, "stream-id")
	if err != nil {
		return err
	}
	if err := a.mutator().StopStream(context.Background(), id); err != nil {
		return detailed(err)
	}
	a.done("Stream %s stopped", id)
	return nil
}

func runDeleteStream(a *app, args []string) error {
	id, err := oneArg(newFlags("delete-stream"), args, "stream-id")
	if err != nil {
		return err
	}
	if err := a.mutator().DeleteStream(context.Background(), id); err != nil {
		return detailed(err)
	}
	a.done("Stream %s deleted", id)
	return nil
}

func runClearStreams(a *app, args []string) error {
	if err := a.mutator().DeleteAllStreams(context.Background()); err != nil {
		return detailed(err)
	}
	a.done("All streams deleted")
	return nil
}

func runUpload(a *app, args []string) error {
	path, err := oneArg(newFlags("upload"), args, "video-file")
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	stream, err := a.mutator().UploadVideo(context.Background(), path, f)
	if err != nil {
		return detailed(err)
	}
	a.done("Uploaded as stream %s", stream.ID)
	if stream.StreamURL != "" {
		fmt.Fprintln(a.out, stream.StreamURL)
	}
	return nil
}

// ─── Users ────────────────────────────────────────────────────────────────

func runAddUser(a *app, args []string) error {
	fs := newFlags("add-user")
	name := fs.StringP("name", "n", "", "Full name")
	email := fs.StringP("email", "e", "", "Email")
	password := fs.StringP("password", "p", "", "Password (prompted when omitted)")
	role := fs.StringP("role", "r", string(models.RolePolice), "police, hospital, transport, road_safety or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *email == "" {
		return errors.New("usage: roadguard add-user --name <name> --email <email> [--role <role>]")
	}
	if *password == "" {
		p, err := readPassword()
		if err != nil {
			return err
		}
		*password = p
	}

	created, err := a.mutator().CreateUser(context.Background(), models.NewUser{
		Name: *name, Email: *email, Password: *password, Role: models.Role(*role),
	})
	if err != nil {
		return detailed(err)
	}
	a.done("User %s created as %s", created.Email, created.Role)
	return nil
}

func runApprove(a *app, args []string) error {
	fs := newFlags("approve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status := models.ApprovalApproved
	switch fs.NArg() {
	case 2:
		status = models.ApprovalStatus(strings.ToLower(fs.Arg(1)))
	case 1:
	default:
		return errors.New("usage: roadguard approve <user-id> [pending|approved|rejected]")
	}
	if !status.Valid() {
		return fmt.Errorf("unknown approval status %q", status)
	}
	if err := a.mutator().UpdateApproval(context.Background(), fs.Arg(0), status); err != nil {
		return detailed(err)
	}
	a.done("User %s marked %s", fs.Arg(0), status)
	return nil
}

func runDeleteUser(a *app, args []string) error {
	id, err := oneArg(newFlags("delete-user"), args, "user-id")
	if err != nil {
		return err
	}
	if err := a.mutator().DeleteUser(context.Background(), id); err != nil {
		return detailed(err)
	}
	a.done("User %s deleted", id)
	return nil
}

// detailedError keeps the chain for errors.Is/As but prints the cause
type detailedError struct {
	err    error
	detail string
}

func (e *detailedError) Error() string { return e.detail }
func (e *detailedError) Unwrap() error { return e.err }

func detailed(err error) error {
	var mErr interface{ Detail() string }
	if errors.As(err, &mErr) {
		return &detailedError{err: err, detail: mErr.Detail()}
	}
	return err
}

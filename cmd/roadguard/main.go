package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"roadguard/internal/api"
	"roadguard/internal/auth"
	"roadguard/internal/config"
	"roadguard/internal/mutate"
	"roadguard/internal/session"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

// app is what every subcommand runs against
type app struct {
	store *session.Store
	api   *api.Client
	loc   *time.Location
	out   io.Writer
	in    *bufio.Reader
	yes   bool

	pollInterval time.Duration
}

type command struct {
	summary string
	// need is checked against the hydrated session before run
	need auth.Requirement
	run  func(a *app, args []string) error
}

var commands = map[string]command{
	"login":  {"Sign in and store the session", auth.Public, runLogin},
	"logout": {"Forget the stored session", auth.Public, runLogout},
	"whoami": {"Show the signed-in account", auth.Public, runWhoami},

	"alerts":  {"List accident alerts, newest first", auth.NeedSession, runAlerts},
	"chart":   {"Show the accident histogram", auth.NeedSession, runChart},
	"watch":   {"Follow the overview and print new accidents", auth.NeedSession, runWatch},
	"cameras": {"List cameras", auth.NeedSession, runCameras},
	"streams": {"List uploaded streams", auth.NeedSession, runStreams},

	"raise-alert":   {"Raise an alert by hand", auth.NeedSession, runRaiseAlert},
	"delete-alert":  {"Delete one alert", auth.NeedSession, runDeleteAlert},
	"delete-camera": {"Delete a camera", auth.NeedSession, runDeleteCamera},
	"detection":     {"Start or stop detection on a camera", auth.NeedSession, runDetection},
	"stop-stream":   {"Stop an active stream", auth.NeedSession, runStopStream},
	"delete-stream": {"Delete one stream", auth.NeedSession, runDeleteStream},
	"clear-streams": {"Delete every stream", auth.NeedSession, runClearStreams},

	"users":        {"List accounts", auth.NeedAdmin, runUsers},
	"add-user":     {"Create an account", auth.NeedAdmin, runAddUser},
	"approve":      {"Set an account's approval status", auth.NeedAdmin, runApprove},
	"delete-user":  {"Delete an account", auth.NeedAdmin, runDeleteUser},
	"add-camera":   {"Register a camera", auth.NeedAdmin, runAddCamera},
	"clear-alerts": {"Delete every alert", auth.NeedAdmin, runClearAlerts},
	"upload":       {"Upload a video to replay as a feed", auth.NeedAdmin, runUpload},
}

func main() {
	pflag.CommandLine.SetInterspersed(false)
	configPath := pflag.StringP("config", "c", "", "Path to a YAML config file")
	apiURL := pflag.String("api", "", "API base URL (overrides API_URL)")
	sessionPath := pflag.String("session", session.DefaultPath(), "Session file")
	yes := pflag.BoolP("yes", "y", false, "Do not ask before destructive actions")
	showVersion := pflag.BoolP("version", "v", false, "Show version")
	pflag.Usage = usage
	pflag.Parse()

	if *showVersion {
		fmt.Printf("roadguard %s\n", version)
		return
	}
	if pflag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name, args := pflag.Arg(0), pflag.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	log.SetFlags(0)
	log.SetPrefix("roadguard: ")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *apiURL != "" {
		cfg.APIURL = strings.TrimRight(*apiURL, "/")
	}

	a, err := newApp(cfg.APIURL, *sessionPath, cfg.SessionSecret)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	a.loc = cfg.Location()
	a.yes = *yes
	a.pollInterval = cfg.PollInterval

	if err := a.exec(cmd, args); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		os.Exit(1)
	}
}

// newApp hydrates the stored session; every API call carries its token
func newApp(apiURL, sessionPath, secret string) (*app, error) {
	sealer, err := session.NewSealer(secret)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(&session.FilePersister{Path: sessionPath, Sealer: sealer})
	if _, err := store.Hydrate(); err != nil {
		return nil, err
	}
	return &app{
		store: store,
		api:   api.New(apiURL, &http.Client{Timeout: api.DefaultTimeout, Transport: store.Transport(nil)}),
		loc:   time.UTC,
		out:   os.Stdout,
		in:    bufio.NewReader(os.Stdin),
	}, nil
}

// exec applies the same guard the console uses for pages, then runs cmd.
// A token the API rejects ends the stored session.
func (a *app) exec(cmd command, args []string) error {
	switch auth.Decide(a.store.Current(), cmd.need) {
	case auth.RedirectLogin:
		return errors.New("not signed in, run: roadguard login")
	case auth.RedirectDashboard:
		return errors.New("this command needs an admin account")
	}

	err := cmd.run(a, args)
	if api.IsUnauthorized(err) && a.store.Current() != nil {
		if lerr := a.store.Logout(); lerr != nil {
			log.Printf("⚠️  Could not clear stale session: %v", lerr)
		}
		return errors.New("session expired, run: roadguard login")
	}
	return err
}

// confirmer asks on the terminal before destructive actions unless --yes
func (a *app) confirmer() mutate.Confirmer {
	if a.yes {
		return mutate.AlwaysConfirm
	}
	return mutate.ConfirmFunc(func(_ context.Context, action mutate.Action, target string) error {
		prompt := fmt.Sprintf("%s %s?", capitalize(string(action)), target)
		if target == "all" {
			prompt = capitalize(string(action)) + "? This cannot be undone."
		}
		fmt.Fprintf(a.out, "%s [y/N] ", prompt)
		line, _ := a.in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return nil
		}
		return mutate.ErrNotConfirmed
	})
}

func (a *app) mutator() *mutate.Mutator {
	m := &mutate.Mutator{API: a.api, Confirm: a.confirmer()}
	if sess := a.store.Current(); sess != nil {
		m.Actor = sess.Email
	}
	return m
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: roadguard [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tag := ""
		if commands[name].need == auth.NeedAdmin {
			tag = " (admin)"
		}
		fmt.Fprintf(os.Stderr, "  %-14s %s%s\n", name, commands[name].summary, tag)
	}
	fmt.Fprintln(os.Stderr, "\nFlags:")
	pflag.PrintDefaults()
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/target/quiz-ui/internal/bootstrap"
	domainauth "github.com/target/quiz-ui/internal/domain/auth"
	apperrors "github.com/target/quiz-ui/internal/errors"
	"github.com/target/quiz-ui/internal/service"
)

// Exit codes.
const (
	exitFailure   = 1
	exitUsage     = 2
	exitSignedOut = 3
)

// errSignedOut reports that the command needs a session and there is none.
var errSignedOut = errors.New("not signed in")

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func exitCode(err error) int {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return exitUsage
	case errors.Is(err, errSignedOut):
		return exitSignedOut
	default:
		return exitFailure
	}
}

// CLI dispatches quizctl subcommands.
type CLI struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// NewApp builds the instance the commands operate on.
	NewApp func(ctx context.Context) (*bootstrap.App, error)
}

type command struct {
	summary string
	bind    func(fs *pflag.FlagSet) func(ctx context.Context, c *CLI, app *bootstrap.App) error
}

var commands = map[string]command{
	"login":    {summary: "sign in and store the session", bind: loginCommand},
	"register": {summary: "create an account (does not sign in)", bind: registerCommand},
	"whoami":   {summary: "print the signed-in identity", bind: whoamiCommand},
	"refresh":  {summary: "re-validate the session with the backend", bind: refreshCommand},
	"logout":   {summary: "sign out everywhere sharing this storage", bind: logoutCommand},
	"watch":    {summary: "print the session state every time it changes", bind: watchCommand},
}

// Run parses args and executes one subcommand.
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		c.printUsage()
		if len(args) == 0 {
			return usagef("a command is required")
		}
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		c.printUsage()
		return usagef("unknown command %q", name)
	}

	fs := pflag.NewFlagSet("quizctl "+name, pflag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.Stderr, "Usage: quizctl %s [flags]\n\n%s.\n\nFlags:\n", name, cmd.summary)
		fs.PrintDefaults()
	}
	exec := cmd.bind(fs)
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return usageError{msg: err.Error()}
	}
	if fs.NArg() > 0 {
		return usagef("unexpected argument: %s", fs.Arg(0))
	}

	app, err := c.NewApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			fmt.Fprintf(c.Stderr, "warning: %v\n", cerr)
		}
	}()
	return exec(ctx, c, app)
}

func (c *CLI) printUsage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(c.Stderr, "Usage: quizctl <command> [flags]")
	fmt.Fprintln(c.Stderr)
	fmt.Fprintln(c.Stderr, "Commands:")
	for _, name := range names {
		fmt.Fprintf(c.Stderr, "  %-9s %s\n", name, commands[name].summary)
	}
}

func (c *CLI) readPassword(fromStdin bool, flagValue string) (string, error) {
	if !fromStdin {
		return flagValue, nil
	}
	line, err := bufio.NewReader(c.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func loginCommand(fs *pflag.FlagSet) func(context.Context, *CLI, *bootstrap.App) error {
	email := fs.StringP("email", "e", "", "account email")
	password := fs.StringP("password", "p", "", "account password")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")

	return func(ctx context.Context, c *CLI, app *bootstrap.App) error {
		pw, err := c.readPassword(*passwordStdin, *password)
		if err != nil {
			return err
		}
		identity, err := app.Auth.Login(ctx, *email, pw)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintf(c.Stdout, "signed in as %s (%s)\n", identity.DisplayName(), identity.Role)
		return nil
	}
}

func registerCommand(fs *pflag.FlagSet) func(context.Context, *CLI, *bootstrap.App) error {
	email := fs.StringP("email", "e", "", "account email")
	password := fs.StringP("password", "p", "", "account password")
	passwordStdin := fs.Bool("password-stdin", false, "read the password from the first line of stdin")
	first := fs.String("first-name", "", "first name")
	last := fs.String("last-name", "", "last name")
	admin := fs.Bool("admin", false, "request the admin role")
	inactive := fs.Bool("inactive", false, "request a suspended account")

	return func(ctx context.Context, c *CLI, app *bootstrap.App) error {
		pw, err := c.readPassword(*passwordStdin, *password)
		if err != nil {
			return err
		}
		in := service.RegisterInput{
			Email:     *email,
			Password:  pw,
			FirstName: *first,
			LastName:  *last,
		}
		if fs.Changed("admin") {
			in.Admin = admin
		}
		if fs.Changed("inactive") {
			active := !*inactive
			in.Active = &active
		}
		res, err := app.Auth.Register(ctx, in)
		if err != nil {
			return describe(err)
		}
		fmt.Fprintln(c.Stdout, res.Message)
		return nil
	}
}

func whoamiCommand(fs *pflag.FlagSet) func(context.Context, *CLI, *bootstrap.App) error {
	asJSON := fs.Bool("json", false, "print the identity as JSON")

	return func(_ context.Context, c *CLI, app *bootstrap.App) error {
		identity := app.Store.CurrentIdentity()
		if identity == nil {
			return errSignedOut
		}
		return printIdentity(c.Stdout, identity, *asJSON)
	}
}

func refreshCommand(fs *pflag.FlagSet) func(context.Context, *CLI, *bootstrap.App) error {
	asJSON := fs.Bool("json", false, "print the identity as JSON")

	return func(ctx context.Context, c *CLI, app *bootstrap.App) error {
		identity := app.Auth.Refresh(ctx)
		if identity == nil {
			return errSignedOut
		}
		return printIdentity(c.Stdout, identity, *asJSON)
	}
}

func logoutCommand(_ *pflag.FlagSet) func(context.Context, *CLI, *bootstrap.App) error {
	return func(ctx context.Context, c *CLI, app *bootstrap.App) error {
		if err := app.Auth.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.Stdout, "signed out")
		return nil
	}
}

func watchCommand(fs *pflag.FlagSet) func(context.Context, *CLI, *bootstrap.App) error {
	keepAlive := fs.Bool("keepalive", false, "refresh the credential before it expires while watching")

	return func(ctx context.Context, c *CLI, app *bootstrap.App) error {
		changes := make(chan struct{}, 1)
		unsubscribe := app.Store.Subscribe(func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		watchErr := make(chan error, 1)
		go func() { watchErr <- app.Store.Watch(ctx) }()
		if *keepAlive {
			go func() { _ = app.Auth.KeepAlive(ctx, 0) }()
		}

		printState(c.Stdout, app.Store.Snapshot())
		for {
			select {
			case <-ctx.Done():
				return <-watchErr
			case err := <-watchErr:
				return err
			case <-changes:
				printState(c.Stdout, app.Store.Snapshot())
			}
		}
	}
}

func printState(w io.Writer, sess domainauth.Session) {
	if sess.Identity == nil {
		fmt.Fprintln(w, sess.State().String())
		return
	}
	fmt.Fprintf(w, "%s %s\n", sess.State().String(), sess.Identity.Email)
}

func printIdentity(w io.Writer, identity *domainauth.Identity, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(identity)
	}
	fmt.Fprintf(w, "%s <%s>\nrole: %s\nstatus: %s\n", identity.DisplayName(), identity.Email, identity.Role, identity.Status)
	return nil
}

// describe turns an operation error into a one-line message.
func describe(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return fmt.Errorf("%s: %s", appErr.Code, appErr.Message)
	}
	return err
}

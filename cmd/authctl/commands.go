package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kiranshivaraju/appauth/internal/auth"
	"github.com/kiranshivaraju/appauth/internal/authz"
	"github.com/kiranshivaraju/appauth/internal/cache"
	"github.com/kiranshivaraju/appauth/internal/store"
	"github.com/kiranshivaraju/appauth/pkg/models"
)

var errUsage = errors.New("usage")

const usageText = `usage: authctl <command> [arguments]

commands:
  user add [-password] <name>     create a user, optionally prompting for a password
  user passwd <name>              set a user's password
  user disable <name>             remove a user's password and end their sessions
  user outdated                   list users whose hash predates the current argon2 settings
  apikey add <name>               create an API key and print it once
  sessions list <name>            list a user's live sessions
  sessions rotate                 assign next cookies to every active session
  perms <name>                    print a user's effective permissions
  grant <name> <permission>       grant a permission to a user
  revoke <name> <permission>      revoke a user's direct permission
  group grant <role> <permission> grant a permission to the group mapped to role
  roles set <name> [role...]      replace a user's roles (ROLE_SOURCE=redis)
`

func usage(w io.Writer) { fmt.Fprint(w, usageText) }

type passwordHasher interface {
	auth.Hasher
	NeedsRehash(encoded string) bool
}

type sessionAdmin interface {
	Sessions(ctx context.Context, userID int64) ([]*models.Session, error)
	Logout(ctx context.Context, cookie string) error
}

type permissionResolver interface {
	EffectivePermissions(ctx context.Context, user *models.User) (authz.Set, error)
}

type sweeper interface {
	Sweep(ctx context.Context) (rotated int64, ran bool, err error)
}

type roleWriter interface {
	SetMembers(ctx context.Context, key string, members []string) error
}

// app carries the dependencies of every command.
type app struct {
	store      store.Store
	hasher     passwordHasher
	sessions   sessionAdmin
	resolver   permissionResolver
	sweeper    sweeper
	roles      roleWriter
	roleSource string

	stdout       io.Writer
	stderr       io.Writer
	readPassword func() (string, error)
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.usageErr("missing command")
	}
	cmd, rest := args[0], args[1:]

	sub := ""
	if len(rest) > 0 {
		sub = rest[0]
	}

	switch {
	case cmd == "user" && sub == "add":
		return a.userAdd(ctx, rest[1:])
	case cmd == "user" && sub == "passwd":
		return a.userPasswd(ctx, rest[1:])
	case cmd == "user" && sub == "disable":
		return a.userDisable(ctx, rest[1:])
	case cmd == "user" && sub == "outdated":
		return a.userOutdated(ctx, rest[1:])
	case cmd == "apikey" && sub == "add":
		return a.apikeyAdd(ctx, rest[1:])
	case cmd == "sessions" && sub == "list":
		return a.sessionsList(ctx, rest[1:])
	case cmd == "sessions" && sub == "rotate":
		return a.sessionsRotate(ctx, rest[1:])
	case cmd == "perms":
		return a.perms(ctx, rest)
	case cmd == "grant":
		return a.grant(ctx, rest)
	case cmd == "revoke":
		return a.revoke(ctx, rest)
	case cmd == "group" && sub == "grant":
		return a.groupGrant(ctx, rest[1:])
	case cmd == "roles" && sub == "set":
		return a.rolesSet(ctx, rest[1:])
	default:
		return a.usageErr("unknown command %q", strings.TrimSpace(cmd+" "+sub))
	}
}

func (a *app) usageErr(format string, args ...any) error {
	fmt.Fprintf(a.stderr, "authctl: "+format+"\n\n", args...)
	usage(a.stderr)
	return errUsage
}

// parse parses flags into fs and checks the positional argument count.
// maxArgs < 0 means unbounded.
func (a *app) parse(fs *flag.FlagSet, args []string, minArgs, maxArgs int) ([]string, error) {
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	pos := fs.Args()
	if len(pos) < minArgs || (maxArgs >= 0 && len(pos) > maxArgs) {
		return nil, a.usageErr("%s: wrong number of arguments", fs.Name())
	}
	return pos, nil
}

func (a *app) lookupUser(ctx context.Context, name string) (*models.User, error) {
	u, err := a.store.GetUserByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (a *app) promptHash() (*string, error) {
	pw, err := a.readPassword()
	if err != nil {
		return nil, err
	}
	if pw == "" {
		return nil, errors.New("password must not be empty")
	}
	hash, err := a.hasher.Hash(pw)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &hash, nil
}

// --- users ---

func (a *app) userAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("user add", flag.ContinueOnError)
	withPassword := fs.Bool("password", false, "prompt for a password")
	pos, err := a.parse(fs, args, 1, 1)
	if err != nil {
		return err
	}

	u := &models.User{Name: pos[0]}
	if *withPassword {
		if u.Password, err = a.promptHash(); err != nil {
			return err
		}
	}

	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		return a.store.CreateUser(ctx, u)
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		return fmt.Errorf("user %q already exists", u.Name)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Fprintf(a.stdout, "created user %s (id %d)\n", u.Name, u.ID)
	return nil
}

func (a *app) userPasswd(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("user passwd", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}

	hash, err := a.promptHash()
	if err != nil {
		return err
	}

	var (
		name     string
		upgraded bool
	)
	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		u, err := a.lookupUser(ctx, pos[0])
		if err != nil {
			return err
		}
		name = u.Name
		upgraded = u.Password != nil && a.hasher.NeedsRehash(*u.Password)
		if err := a.store.SetUserPassword(ctx, u.ID, hash); err != nil {
			return fmt.Errorf("set password: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "password updated for %s\n", name)
	if upgraded {
		fmt.Fprintln(a.stdout, "previous hash used outdated argon2 parameters; now upgraded")
	}
	return nil
}

// userOutdated lists password hashes made with other argon2 parameters. They
// verify at their own cost, so a wrong password for such a user is no longer
// timed like an unknown user until the password is reset.
func (a *app) userOutdated(ctx context.Context, args []string) error {
	if _, err := a.parse(flag.NewFlagSet("user outdated", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}

	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var names []string
	for _, u := range users {
		if u.Password != nil && a.hasher.NeedsRehash(*u.Password) {
			names = append(names, u.Name)
		}
	}
	if len(names) == 0 {
		fmt.Fprintln(a.stdout, "all password hashes use the current argon2 parameters")
		return nil
	}

	for _, name := range names {
		fmt.Fprintln(a.stdout, name)
	}
	fmt.Fprintf(a.stderr, "warning: %d user(s) have hashes with outdated argon2 parameters; reset with 'authctl user passwd'\n", len(names))
	return nil
}

func (a *app) userDisable(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("user disable", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}

	var ended int
	var name string
	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		u, err := a.lookupUser(ctx, pos[0])
		if err != nil {
			return err
		}
		name = u.Name
		if err := a.store.SetUserPassword(ctx, u.ID, nil); err != nil {
			return fmt.Errorf("clear password: %w", err)
		}
		live, err := a.sessions.Sessions(ctx, u.ID)
		if err != nil {
			return err
		}
		for _, s := range live {
			if err := a.sessions.Logout(ctx, s.Cookie); err != nil {
				return err
			}
		}
		ended = len(live)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "disabled %s, ended %d session(s)\n", name, ended)
	return nil
}

// --- api keys ---

func (a *app) apikeyAdd(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("apikey add", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}

	token, material, err := auth.GenerateAPIKey(a.hasher)
	if err != nil {
		return err
	}

	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		u, err := a.lookupUser(ctx, pos[0])
		if err != nil {
			return err
		}
		if err := a.store.CreateAPIKey(ctx, &models.APIKey{UserID: u.ID, Key: material}); err != nil {
			return fmt.Errorf("create api key: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stderr, "store this key now; it cannot be shown again")
	fmt.Fprintln(a.stdout, token)
	return nil
}

// --- sessions ---

func (a *app) sessionsList(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("sessions list", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}

	u, err := a.lookupUser(ctx, pos[0])
	if err != nil {
		return err
	}
	live, err := a.sessions.Sessions(ctx, u.ID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tCREATED")
	for _, s := range live {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.ID, s.State(), s.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func (a *app) sessionsRotate(ctx context.Context, args []string) error {
	if _, err := a.parse(flag.NewFlagSet("sessions rotate", flag.ContinueOnError), args, 0, 0); err != nil {
		return err
	}

	rotated, ran, err := a.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if !ran {
		return errors.New("rotation already in progress elsewhere")
	}

	fmt.Fprintf(a.stdout, "rotated %d session(s)\n", rotated)
	return nil
}

// --- permissions ---

func (a *app) perms(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("perms", flag.ContinueOnError), args, 1, 1)
	if err != nil {
		return err
	}

	u, err := a.lookupUser(ctx, pos[0])
	if err != nil {
		return err
	}
	set, err := a.resolver.EffectivePermissions(ctx, u)
	if err != nil {
		return err
	}
	for _, name := range set.Names() {
		fmt.Fprintln(a.stdout, name)
	}
	return nil
}

func (a *app) grant(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("grant", flag.ContinueOnError), args, 2, 2)
	if err != nil {
		return err
	}

	var name string
	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		u, err := a.lookupUser(ctx, pos[0])
		if err != nil {
			return err
		}
		name = u.Name
		if err := a.store.GrantUserPermission(ctx, u.ID, pos[1]); err != nil {
			return fmt.Errorf("grant permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "granted %s to %s\n", pos[1], name)
	return nil
}

func (a *app) revoke(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("revoke", flag.ContinueOnError), args, 2, 2)
	if err != nil {
		return err
	}

	var name string
	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		u, err := a.lookupUser(ctx, pos[0])
		if err != nil {
			return err
		}
		name = u.Name
		err = a.store.RevokeUserPermission(ctx, u.ID, pos[1])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s has no direct grant of %s", u.Name, pos[1])
		}
		if err != nil {
			return fmt.Errorf("revoke permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "revoked %s from %s\n", pos[1], name)
	return nil
}

func (a *app) groupGrant(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("group grant", flag.ContinueOnError), args, 2, 2)
	if err != nil {
		return err
	}

	err = a.store.WithTx(ctx, func(ctx context.Context) error {
		return a.store.GrantGroupPermission(ctx, pos[0], pos[1])
	})
	if err != nil {
		return fmt.Errorf("grant group permission: %w", err)
	}
	fmt.Fprintf(a.stdout, "granted %s to role %s\n", pos[1], pos[0])
	return nil
}

func (a *app) rolesSet(ctx context.Context, args []string) error {
	pos, err := a.parse(flag.NewFlagSet("roles set", flag.ContinueOnError), args, 1, -1)
	if err != nil {
		return err
	}
	if a.roleSource != "redis" {
		return fmt.Errorf("roles are read from ROLE_MAP when ROLE_SOURCE=%s", a.roleSource)
	}

	u, err := a.lookupUser(ctx, pos[0])
	if err != nil {
		return err
	}
	if err := a.roles.SetMembers(ctx, cache.RolesKey(u.Name), pos[1:]); err != nil {
		return fmt.Errorf("set roles: %w", err)
	}
	fmt.Fprintf(a.stdout, "%s now has roles [%s]\n", u.Name, strings.Join(pos[1:], " "))
	return nil
}

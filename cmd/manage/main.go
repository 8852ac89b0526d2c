// Command manage runs one-off administrative tasks against the accounts
// database:
//
//	manage migrate
//	manage createsuperuser -email admin@example.com [-first-name A] [-last-name B]
//	manage purge-pending
//	manage purge-stale
//
// The superuser password is read from -password or SUPERUSER_PASSWORD.
// Configuration is loaded exactly as the server loads it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/config"
	"github.com/sakif/accounts/internal/server"
	"github.com/sakif/accounts/internal/service"
)

const usage = `usage: manage [-config file] [-env file] <command> [flags]

commands:
  migrate           apply database migrations
  createsuperuser   create an active staff account
  purge-pending     delete expired pending registrations
  purge-stale       delete accounts never activated within reaper.inactive_after`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "manage:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("manage", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprintln(global.Output(), usage) }
	configFile := global.String("config", os.Getenv("CONFIG_FILE"), "path to a config file")
	envFile := global.String("env", ".env", "path to a dotenv file")
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		return err
	}
	logger := server.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// OpenDatabase migrates, so "migrate" is just open and close.
	db, err := server.OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "migrate":
		logger.Info("migrations applied", slog.String("driver", cfg.Database.Driver))
		return nil

	case "createsuperuser":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		var in service.SuperuserInput
		fs.StringVar(&in.Email, "email", "", "email address (required)")
		fs.StringVar(&in.Password, "password", os.Getenv("SUPERUSER_PASSWORD"), "password")
		fs.StringVar(&in.FirstName, "first-name", "", "first name")
		fs.StringVar(&in.LastName, "last-name", "", "last name")
		if err := fs.Parse(cmdArgs); err != nil {
			return err
		}

		accounts := service.NewAccountService(db,
			auth.NewPasswordService(cfg.Auth.BcryptCost),
			auth.NewPasswordPolicy(cfg.Password.MinLength),
			logger,
		)
		user, err := accounts.CreateSuperuser(ctx, in)
		if err != nil {
			return describe(err)
		}
		fmt.Printf("Superuser %s created (id %s).\n", user.Email, user.ID)
		return nil

	case "purge-pending", "purge-stale":
		reaper := service.NewReaper(db, cfg.Reaper.InactiveAfter, cfg.Reaper.BatchSize, logger)
		now := time.Now().UTC()

		var n int64
		if cmd == "purge-pending" {
			n, err = reaper.PurgeExpiredPending(ctx, now)
		} else {
			n, err = reaper.PurgeStaleAccounts(ctx, now)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%d rows deleted.\n", n)
		return nil

	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// describe flattens field errors into one readable error.
func describe(err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || len(appErr.FieldErrors()) == 0 {
		return err
	}

	fields := appErr.FieldErrors()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := appErr.Message
	for _, name := range names {
		for _, m := range fields[name] {
			msg += fmt.Sprintf("\n  %s: %s", name, m)
		}
	}
	return errors.New(msg)
}

// Package admincli implements the operator commands shipped as cmd/admin:
// applying database migrations and bootstrapping an administrator account
// without going through self-registration.
package admincli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"
)

const usage = `usage: admin <command> [flags]

commands:
  migrate        apply database migrations
  create-admin   create a verified administrator account
                 (-email, -first, -last, -title; missing values are prompted)
`

// openStore is a seam for tests.
var openStore = server.OpenStore

// operator is the caller recorded for accounts created from the console.
var operator = &models.Account{ID: "console", Role: models.RoleAdmin}

// Run executes the command named by args[0]. Configuration is read the same
// way the server reads it, so the same flags, env vars and JSON file apply.
func Run(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cmd, rest := flagx.SplitCommand(args)

	cfg, err := config.LoadConfig(rest)
	if err != nil {
		return err
	}

	switch cmd {
	case "migrate":
		return migrate(ctx, cfg, out)
	case "create-admin":
		return createAdmin(ctx, cfg, rest, bufio.NewReader(in), out)
	case "", "help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func migrate(ctx context.Context, cfg *config.Config, out io.Writer) error {
	_, closeStore, err := openStore(ctx, cfg.DatabaseDSN, true)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer closeStore()

	fmt.Fprintln(out, "Migrations applied")
	return nil
}

type adminFlags struct {
	email, first, last, title string
}

func parseAdminFlags(args []string) (adminFlags, error) {
	var f adminFlags
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&f.email, "email", "", "administrator email")
	fs.StringVar(&f.first, "first", "", "first name")
	fs.StringVar(&f.last, "last", "", "last name")
	fs.StringVar(&f.title, "title", "", "title (Mr, Mrs, Miss, Ms, Dr)")
	err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-first", "-last", "-title"}))
	return f, err
}

func createAdmin(ctx context.Context, cfg *config.Config, args []string, reader *bufio.Reader, out io.Writer) error {
	f, err := parseAdminFlags(args)
	if err != nil {
		return err
	}

	for _, field := range []struct {
		value *string
		label string
	}{
		{&f.email, "Email"},
		{&f.first, "First name"},
		{&f.last, "Last name"},
	} {
		if *field.value != "" {
			continue
		}
		if *field.value, err = prompt(reader, field.label, out); err != nil {
			return err
		}
	}

	password, err := promptPassword(out)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.DatabaseDSN, true)
	if err != nil {
		return fmt.Errorf("create-admin: %w", err)
	}
	defer closeStore()

	logger := logging.NewJSONLogger(out, "warn")
	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.AccessTokenValidityDuration)
	ledger := services.NewRefreshTokenLedger(store, cfg.RefreshTokenValidityDuration, logger)
	svc := services.NewAccountService(store, cryptox.NewBcryptHasher(cfg.BcryptCost), issuer, ledger,
		silentMailer{}, cfg, logger, nil)

	account, err := svc.Create(ctx, operator, services.CreateRequest{
		Title:     f.title,
		FirstName: f.first,
		LastName:  f.last,
		Email:     f.email,
		Password:  password,
		Role:      models.RoleAdmin,
	})
	if err != nil {
		return fmt.Errorf("create-admin: %w", err)
	}

	fmt.Fprintf(out, "Administrator %s created with id %s\n", account.Email, account.ID)
	return nil
}

// silentMailer is used because console-created accounts are already
// verified and never trigger mail.
type silentMailer struct{}

func (silentMailer) SendVerification(context.Context, string, string, string) {}
func (silentMailer) SendAlreadyRegistered(context.Context, string, string)    {}
func (silentMailer) SendPasswordReset(context.Context, string, string, string) {}

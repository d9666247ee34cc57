// Command dictationctl runs administrative tasks against the dictation
// database: schema migration and superuser bootstrap.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"medical-dictation-server/internal/config"
	"medical-dictation-server/internal/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("subcommand required")
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	switch args[0] {
	case "migrate":
		return runMigrate(args[1:], out)
	case "create-superuser":
		return runCreateSuperuser(args[1:], out)
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", args[0])
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: dictationctl <subcommand> [flags]

Subcommands:
  migrate           Create or update the database schema
  create-superuser  Create an admin account unless the email exists

Database settings come from the same environment as the server (DB_*).
`)
}

// dbFlags registers the database overrides shared by every subcommand.
func dbFlags(fs *pflag.FlagSet) (driver, dsn *string) {
	return fs.String("driver", "", "database driver (mysql, postgres, sqlite); defaults to DB_DRIVER"),
		fs.String("dsn", "", "database DSN; defaults to the DSN built from DB_*")
}

func openDB(driver, dsn string) (*gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dbCfg := models.DatabaseConfig{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, LogLevel: cfg.Database.LogLevel}
	if driver != "" {
		dbCfg.Driver = driver
	}
	if dsn != "" {
		dbCfg.DSN = dsn
	}
	return models.InitDB(dbCfg)
}

func runMigrate(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	driver, dsn := dbFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if _, err := openDB(*driver, *dsn); err != nil {
		return err
	}
	fmt.Fprintln(out, "schema up to date")
	return nil
}

func runCreateSuperuser(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("create-superuser", pflag.ContinueOnError)
	driver, dsn := dbFlags(fs)
	email := fs.String("email", os.Getenv("FIRST_SUPERUSER_EMAIL"), "account email")
	password := fs.String("password", os.Getenv("FIRST_SUPERUSER_PASSWORD"), "account password (min 8 characters)")
	name := fs.String("name", "Administrator", "full name")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if len(*password) < 8 {
		return fmt.Errorf("--password must be at least 8 characters")
	}

	db, err := openDB(*driver, *dsn)
	if err != nil {
		return err
	}
	user, created, err := models.EnsureSuperuser(db, *email, *password, *name)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(out, "created superuser %s (%s)\n", user.Email, user.ID)
	} else {
		fmt.Fprintf(out, "user %s already exists, left unchanged\n", user.Email)
	}
	return nil
}

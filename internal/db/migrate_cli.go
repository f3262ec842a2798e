package db

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
)

// ErrUsage is returned for a malformed migrate command line.
var ErrUsage = errors.New("invalid migrate usage")

// RunMigrateCommand handles the 'migrate' subcommand. It opens dbPath
// without applying the schema, so that the requested action alone decides
// what runs. force asks for confirmation on stdin.
func RunMigrateCommand(args []string, dbPath string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(stdout)
		return ErrUsage
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(stdout)
		return nil
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()
	migrations := MigrationsFS()

	switch action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "✓ All migrations applied successfully")
		return printVersion(database, migrations, stdout)

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "✓ Migration rolled back successfully")
		return printVersion(database, migrations, stdout)

	case "status":
		st, err := database.GetMigrationStatus(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "=== Migration Status ===")
		fmt.Fprintf(stdout, "Current version: %d\n", st.CurrentVersion)
		fmt.Fprintf(stdout, "Latest available: %d\n", st.LatestVersion)
		fmt.Fprintf(stdout, "Dirty: %v\n", st.Dirty)
		fmt.Fprintf(stdout, "Schema migrations table exists: %v\n", st.TableExists)
		switch {
		case st.Dirty:
			fmt.Fprintln(stdout, "\n⚠️  Database is in a dirty state. Inspect it, then run: spm-analyse migrate force <version>")
		case st.Pending():
			fmt.Fprintf(stdout, "\n⚠️  %d migration(s) pending. Run: spm-analyse migrate up\n", st.LatestVersion-st.CurrentVersion)
		}
		return nil

	case "version":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := database.MigrateTo(migrations, uint(v)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "✓ Migrated to version %d successfully\n", v)
		return nil

	case "force":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "⚠️  WARNING: Forcing migration version to %d\n", v)
		fmt.Fprint(stdout, "Continue? [y/N]: ")
		answer, _ := bufio.NewReader(stdin).ReadString('\n')
		if a := strings.TrimSpace(answer); a != "y" && a != "Y" {
			fmt.Fprintln(stdout, "Aborted")
			return nil
		}
		if err := database.MigrateForce(migrations, v); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "✓ Migration version forced to %d\n", v)
		return nil
	}

	fmt.Fprintf(stdout, "Unknown migrate action: %s\n\n", action)
	PrintMigrateHelp(stdout)
	return ErrUsage
}

func versionArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%w: spm-analyse migrate %s <version_number>", ErrUsage, args[0])
	}
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid version number %q", ErrUsage, args[1])
	}
	return v, nil
}

func printVersion(database *DB, migrations fs.FS, stdout io.Writer) error {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// PrintMigrateHelp writes the help message for the migrate command.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Database Migration Commands

Usage: spm-analyse migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback one migration
  status          Show current migration status and version
  version <N>     Migrate to specific version N
  force <N>       Force migration version to N (recovery only)
  help            Show this help message

Options:
  -db <path>      Path to database file (default: spm.db)
`)
}

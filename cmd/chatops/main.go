// Package main is the entrypoint for the chatops service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/chatops-rpc/internal/config"
	"github.com/morezero/chatops-rpc/internal/server"
	"github.com/morezero/chatops-rpc/pkg/client"
	"github.com/morezero/chatops-rpc/pkg/commsutil"
	"github.com/morezero/chatops-rpc/pkg/db"
	"github.com/morezero/chatops-rpc/pkg/matcher"
)

const usage = `Usage: chatops [command]
       chatops serve                   Start the service (NATS, HTTP, audit trail).
       chatops migrate up              Run database migrations.
       chatops migrate down            Roll back one migration (migrations are forward-only).
       chatops migrate status          Show migration status.
       chatops ensure-db [name]        Create database if missing (default name: chatops_test). Uses DATABASE_URL host/user.
       chatops clear                   Truncate the invocation audit trail; schema is preserved.
       chatops prune <days>            Delete audit rows older than <days> days.
       chatops history [n] [user]      Show the n most recent invocations (default 20), optionally for one user.
       chatops catalog                 Print the command catalog JSON for the configured manifest.
       chatops match <message>         Show which command and params a message routes to, without running it.
       chatops chat <user> <message>   Send a chat message to a running service over NATS.

Commands:
  serve            (default) Start the chatops service.
  migrate up       Run database migrations only.
  migrate down     Roll back last migration (not supported, prints a notice).
  migrate status   Show current migration status.
  ensure-db [name] Create database (e.g. chatops_test) on same host as DATABASE_URL; then run tests with that URL.
  clear            Truncate audit data; schema preserved.
  prune <days>     Delete audit data older than the given number of days.
  history [n] [u]  List recent invocations, newest first.
  catalog          Print the catalog the service would serve.
  match <message>  Dry-run routing for a chat message.
  chat <u> <msg>   Route a message against the live catalog and execute it as user <u>.

Environment: DATABASE_URL (audit commands), MIGRATION_PATH, CHATOPS_MANIFEST_FILE, CHATOPS_AUTH_TOKEN,
COMMS_URL, HTTP_ADDR (default :8080). See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("chatops migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up":
			if err := withPool(runMigrateUp); err != nil {
				log.Fatalf("chatops migrate up: %v", err)
			}
		case "status":
			if err := withPool(runMigrateStatus); err != nil {
				log.Fatalf("chatops migrate status: %v", err)
			}
		case "down":
			if err := withPool(runMigrateDown); err != nil {
				log.Fatalf("chatops migrate down: %v", err)
			}
		default:
			log.Fatalf("chatops migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := withPool(runClear); err != nil {
			log.Fatalf("chatops clear: %v", err)
		}
		return
	case "prune":
		if len(args) < 2 {
			log.Fatalf("chatops prune: require number of days")
		}
		days, err := strconv.Atoi(args[1])
		if err != nil || days < 1 {
			log.Fatalf("chatops prune: days must be a positive integer, got %q", args[1])
		}
		if err := withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			return runPrune(ctx, pool, days)
		}); err != nil {
			log.Fatalf("chatops prune: %v", err)
		}
		return
	case "history":
		limit, user, err := parseHistoryArgs(args[1:])
		if err != nil {
			log.Fatalf("chatops history: %v", err)
		}
		if err := withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			return runHistory(ctx, cfg, pool, limit, user)
		}); err != nil {
			log.Fatalf("chatops history: %v", err)
		}
		return
	case "ensure-db":
		dbName := "chatops_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("chatops ensure-db: %v", err)
		}
		return
	case "catalog":
		if err := runCatalog(); err != nil {
			log.Fatalf("chatops catalog: %v", err)
		}
		return
	case "match":
		if len(args) < 2 {
			log.Fatalf("chatops match: require a message")
		}
		if err := runMatch(strings.Join(args[1:], " ")); err != nil {
			log.Fatalf("chatops match: %v", err)
		}
		return
	case "chat":
		if len(args) < 3 {
			log.Fatalf("chatops chat: require a user and a message")
		}
		if err := runChat(args[1], strings.Join(args[2:], " ")); err != nil {
			log.Fatalf("chatops chat: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("chatops: %v", err)
	}
}

// withPool loads config, opens the audit database and runs fn against it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return db.MigrationStatus(ctx, pool, cfg.MigrationPath)
}

func runMigrateDown(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	return db.MigrationDown(ctx, pool, cfg.MigrationPath)
}

func runClear(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
	if err := db.ClearInvocations(ctx, pool); err != nil {
		return fmt.Errorf("clear invocations: %w", err)
	}
	return nil
}

func runPrune(ctx context.Context, pool *pgxpool.Pool, days int) error {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := db.PruneInvocations(ctx, pool, cutoff)
	if err != nil {
		return fmt.Errorf("prune invocations: %w", err)
	}
	fmt.Printf("Deleted %d invocations older than %s.\n", n, cutoff.UTC().Format(time.RFC3339))
	return nil
}

// parseHistoryArgs reads the optional [n] [user] arguments of history.
func parseHistoryArgs(args []string) (limit int, user string, err error) {
	limit = db.DefaultHistoryLimit
	if len(args) > 0 {
		limit, err = strconv.Atoi(args[0])
		if err != nil || limit < 1 {
			return 0, "", fmt.Errorf("n must be a positive integer, got %q", args[0])
		}
	}
	if len(args) > 1 {
		user = args[1]
	}
	return limit, user, nil
}

func runHistory(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, limit int, user string) error {
	rows, err := db.NewRepository(pool).ListInvocations(ctx, db.ListInvocationsParams{
		Namespace: cfg.Namespace,
		UserName:  user,
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("list invocations: %w", err)
	}
	printHistory(os.Stdout, rows)
	return nil
}

func printHistory(w io.Writer, rows []db.Invocation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tNAMESPACE\tCOMMAND\tUSER\tROOM\tOUTCOME\tMS")
	for _, r := range rows {
		room := ""
		if r.RoomID != nil {
			room = *r.RoomID
		}
		command := r.Command
		if command == "" {
			command = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.Created.UTC().Format(time.RFC3339), r.Namespace, command, r.UserName, room, r.Outcome, r.DurationMs)
	}
	tw.Flush()
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	// Replace path with target database name; query (e.g. sslmode) is kept on u.RawQuery.
	u.Path = "/" + dbName
	if err := db.EnsureDatabase(context.Background(), u.String()); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

func runCatalog() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := server.BuildRuntime(cfg)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rt.Dispatcher.Catalog(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runMatch(message string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rt, err := server.BuildRuntime(cfg)
	if err != nil {
		return err
	}
	res, err := rt.Dispatcher.Match(message)
	if err != nil {
		if errors.Is(err, matcher.ErrNoMatchingCommand) {
			fmt.Println(err.Error())
			return nil
		}
		return err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runChat(user, message string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	nc, err := commsutil.Connect(commsutil.ConnectParams{URL: cfg.COMMSURL, Name: cfg.COMMSName + "-cli", Token: cfg.COMMSToken})
	if err != nil {
		return fmt.Errorf("connect NATS: %w", err)
	}
	defer nc.Close()

	namespace := cfg.Namespace
	if namespace == "" {
		m, err := server.LoadManifest(cfg)
		if err != nil {
			return err
		}
		namespace = m.Namespace
	}

	c := client.NewClient(client.NewClientParams{
		Conn:          nc,
		Namespace:     namespace,
		SubjectPrefix: cfg.SubjectPrefix,
		Token:         cfg.AuthToken,
		MatchTimeout:  cfg.MatchTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	env, err := c.Chat(ctx, user, cfg.RoomID, message)
	if err != nil {
		return err
	}
	result, err := env.Response()
	if err != nil {
		fmt.Println(env.ErrorMessage())
		return nil
	}
	fmt.Println(result)
	return nil
}

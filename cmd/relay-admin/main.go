package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/reviewloop/relay/config"
	"github.com/reviewloop/relay/internal/bootstrap"
	"github.com/reviewloop/relay/internal/data"
	"github.com/reviewloop/relay/internal/domain/model"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"stats": {
			name:        "stats",
			description: "Show delivery counts per channel state",
			run:         runStats,
		},
		"dead-letters": {
			name:        "dead-letters",
			description: "List dead-lettered deliveries",
			run:         runDeadLetters,
		},
		"requeue": {
			name:        "requeue",
			description: "Requeue a dead-lettered delivery as a fresh delivery",
			run:         runRequeue,
		},
		"claims": {
			name:        "claims",
			description: "Inspect dedup claim keys in Redis",
			run:         runClaims,
		},
		"sign": {
			name:        "sign",
			description: "Compute the webhook signature header for a payload file",
			run:         runSign,
		},
	}
}

func printUsage() error {
	if err := writef(os.Stdout, "Usage: relay-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(os.Stdout, "Available commands:\n"); err != nil {
		return err
	}
	for _, c := range commands() {
		if err := writef(os.Stdout, "  %-16s %s\n", c.name, c.description); err != nil {
			return err
		}
	}
	return nil
}

type statsOptions struct {
	RawJSON bool
}

type deadLettersOptions struct {
	Limit   int
	RawJSON bool
}

type requeueOptions struct {
	DeliveryID string
}

type signOptions struct {
	File string
}

type migrateOptions struct {
	Timeout time.Duration
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("running database migrations")

	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}

	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runStats(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatsFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := newChannelRepo(cmdCtx, db)
	stats, err := repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetch channel stats: %w", err)
	}

	if opts.RawJSON {
		return printJSON(stats)
	}
	return printChannelStats(stats)
}

func runDeadLetters(cmdCtx *commandContext, args []string) error {
	opts, err := parseDeadLettersFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := newChannelRepo(cmdCtx, db)
	letters, err := repo.ListDeadLetters(ctx, opts.Limit)
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	if opts.RawJSON {
		return printJSON(letters)
	}
	return printDeadLetters(letters)
}

func runRequeue(cmdCtx *commandContext, args []string) error {
	opts, err := parseRequeueFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	db, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger: cmdCtx.Logger,
		Config: &cmdCtx.Config,
		WantDB: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(db, redisClient); cerr != nil {
			cmdCtx.Logger.Warn("close infra failed", "error", cerr)
		}
	}()

	repo := newChannelRepo(cmdCtx, db)
	newID, err := repo.RequeueDeadLetter(ctx, opts.DeliveryID)
	if err != nil {
		if errors.Is(err, model.ErrDeadLetterNotFound) {
			return fmt.Errorf("no dead letter with delivery id %q", opts.DeliveryID)
		}
		return fmt.Errorf("requeue dead letter: %w", err)
	}

	cmdCtx.Logger.Info("dead letter requeued",
		"delivery_id", opts.DeliveryID,
		"new_delivery_id", newID)

	if err := writef(os.Stdout, "Requeued %s as %s\n", opts.DeliveryID, newID); err != nil {
		return fmt.Errorf("print requeue result: %w", err)
	}
	return nil
}

// claimKeyPattern matches the namespace NewRedisClaimRepo writes under.
const claimKeyPattern = "relay:claim:*"

func runClaims(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	_, redisClient, err := connectInfraWithOptions(&connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	if redisClient == nil {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()

	cmdCtx.Logger.Info("scanning redis", "pattern", claimKeyPattern)

	if headerErr := writef(os.Stdout, "\nDedup Claim Keys in Redis\n"); headerErr != nil {
		return fmt.Errorf("print claims header: %w", headerErr)
	}

	total := 0
	iter := redisClient.Scan(ctx, 0, claimKeyPattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		total++

		ttl, ttlErr := redisClient.TTL(ctx, key).Result()
		if ttlErr != nil {
			cmdCtx.Logger.ErrorContext(ctx, "failed to fetch TTL", "key", key, "error", ttlErr)
			if printErr := writef(os.Stdout, "  %s (TTL: error: %v)\n", key, ttlErr); printErr != nil {
				return fmt.Errorf("print claim key ttl error: %w", printErr)
			}
			continue
		}
		if printErr := writef(os.Stdout, "  %s (TTL: %s)\n", key, renderTTL(ttl)); printErr != nil {
			return fmt.Errorf("print claim key: %w", printErr)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}

	if total == 0 {
		if nonePrintErr := writeln(os.Stdout, "(no keys found)"); nonePrintErr != nil {
			return fmt.Errorf("print claims none: %w", nonePrintErr)
		}
		return nil
	}

	if totalPrintErr := writef(os.Stdout, "\nTotal keys: %d\n", total); totalPrintErr != nil {
		return fmt.Errorf("print claims total: %w", totalPrintErr)
	}
	return nil
}

func runSign(cmdCtx *commandContext, args []string) error {
	opts, err := parseSignFlags(args)
	if err != nil {
		return err
	}

	secret := strings.TrimSpace(cmdCtx.Config.Webhook.Secret)
	if secret == "" {
		return errors.New("WEBHOOK_SECRET is not configured")
	}

	payload, err := readSignPayload(opts.File)
	if err != nil {
		return err
	}

	if err := writeln(os.Stdout, signPayload(secret, payload)); err != nil {
		return fmt.Errorf("print signature: %w", err)
	}
	return nil
}

// signPayload produces the value expected in the signature header for body.
func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func readSignPayload(file string) ([]byte, error) {
	if file == "-" {
		payload, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return payload, nil
	}
	payload, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read payload file: %w", err)
	}
	return payload, nil
}

func newChannelRepo(cmdCtx *commandContext, db *sql.DB) *data.ChannelRepo {
	return data.NewChannelRepo(db, data.ChannelRepoConfig{
		MaxReceives: cmdCtx.Config.Channel.MaxReceives,
		RetryDelay:  cmdCtx.Config.Channel.RetryDelay,
		Logger:      cmdCtx.Logger,
	})
}

func printChannelStats(stats *model.ChannelStats) error {
	if stats == nil {
		return nil
	}
	if err := writef(os.Stdout, "\nChannel Stats\n"); err != nil {
		return fmt.Errorf("write stats title: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "State\tCount"); err != nil {
		return fmt.Errorf("write stats header: %w", err)
	}
	if err := writef(w, "Pending\t%d\n", stats.Pending); err != nil {
		return fmt.Errorf("write pending: %w", err)
	}
	if err := writef(w, "Inflight\t%d\n", stats.Inflight); err != nil {
		return fmt.Errorf("write inflight: %w", err)
	}
	if err := writef(w, "Acked\t%d\n", stats.Acked); err != nil {
		return fmt.Errorf("write acked: %w", err)
	}
	if err := writef(w, "Dead-Lettered\t%d\n", stats.DeadLettered); err != nil {
		return fmt.Errorf("write dead-lettered: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush stats: %w", err)
	}
	return nil
}

func printDeadLetters(letters []*model.DeadLetter) error {
	if len(letters) == 0 {
		if err := writeln(os.Stdout, "No dead-lettered deliveries found"); err != nil {
			return fmt.Errorf("print dead letters none: %w", err)
		}
		return nil
	}

	if err := writef(os.Stdout, "\nDead-Lettered Deliveries\n"); err != nil {
		return fmt.Errorf("write dead letters title: %w", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Delivery ID\tReceives\tDead-Lettered At\tReason"); err != nil {
		return fmt.Errorf("write dead letters header: %w", err)
	}
	for _, dl := range letters {
		if err := writef(w, "%s\t%d\t%s\t%s\n",
			dl.DeliveryID,
			dl.ReceiveCount,
			dl.DeadLetteredAt.Format(time.RFC3339),
			truncateReason(dl.Reason),
		); err != nil {
			return fmt.Errorf("write dead letter row %q: %w", dl.DeliveryID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush dead letters: %w", err)
	}

	if err := writef(os.Stdout, "\nTotal: %d\n", len(letters)); err != nil {
		return fmt.Errorf("write dead letters total: %w", err)
	}
	return nil
}

const maxReasonLength = 80

func truncateReason(reason string) string {
	reason = strings.ReplaceAll(reason, "\n", " ")
	if len(reason) <= maxReasonLength {
		return reason
	}
	return reason[:maxReasonLength-3] + "..."
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func renderTTL(d time.Duration) string {
	switch {
	case d == -1*time.Second:
		return "no expiry"
	case d == -2*time.Second:
		return "key missing"
	default:
		return d.String()
	}
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{
		Timeout: defaultMigrationTimeout,
	}

	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}

	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}

	return opts, nil
}

func parseStatsFlags(args []string) (statsOptions, error) {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts statsOptions
	fs.BoolVar(&opts.RawJSON, "json", false, "Print stats as JSON")

	if err := fs.Parse(args); err != nil {
		return statsOptions{}, err
	}
	return opts, nil
}

func parseDeadLettersFlags(args []string) (deadLettersOptions, error) {
	fs := flag.NewFlagSet("dead-letters", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts deadLettersOptions
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum dead letters to display")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print dead letters as JSON")

	if err := fs.Parse(args); err != nil {
		return deadLettersOptions{}, err
	}

	if opts.Limit <= 0 {
		return deadLettersOptions{}, errors.New("--limit must be greater than zero")
	}

	return opts, nil
}

func parseRequeueFlags(args []string) (requeueOptions, error) {
	fs := flag.NewFlagSet("requeue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts requeueOptions
	fs.StringVar(&opts.DeliveryID, "delivery-id", "", "Delivery ID of the dead letter to requeue (required)")

	if err := fs.Parse(args); err != nil {
		return requeueOptions{}, err
	}

	opts.DeliveryID = strings.TrimSpace(opts.DeliveryID)
	if opts.DeliveryID == "" {
		return requeueOptions{}, errors.New("--delivery-id is required")
	}

	return opts, nil
}

func parseSignFlags(args []string) (signOptions, error) {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts signOptions
	fs.StringVar(&opts.File, "file", "", "Payload file to sign (use - for stdin; required)")

	if err := fs.Parse(args); err != nil {
		return signOptions{}, err
	}

	opts.File = strings.TrimSpace(opts.File)
	if opts.File == "" {
		return signOptions{}, errors.New("--file is required")
	}

	return opts, nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	if len(args) == 0 {
		_, err := fmt.Fprintln(w)
		return err
	}
	_, err := fmt.Fprintln(w, args...)
	return err
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/health-chat-api/internal/app/bootstrap"
	"github.com/wolfman30/health-chat-api/internal/compliance"
	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

// auditlog prints safety audit events as JSON lines, newest first.
func main() {
	_ = godotenv.Load()

	filter, err := parseFilter(os.Args[1:], time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	defer pool.Close()

	audit := compliance.NewAuditService(bootstrap.BuildAuditDB(pool))
	if err := printEvents(ctx, audit, filter, os.Stdout); err != nil {
		logger.Error("failed to list audit events", "error", err)
		os.Exit(1)
	}
}

func parseFilter(args []string, now time.Time) (compliance.AuditFilter, error) {
	var (
		filter    compliance.AuditFilter
		eventType string
		since     time.Duration
	)
	fs := flag.NewFlagSet("auditlog", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Int64Var(&filter.ConversationID, "conversation", 0, "Conversation ID")
	fs.StringVar(&filter.RequestID, "request", "", "Request ID")
	fs.StringVar(&eventType, "type", "", "Event type, e.g. safety.emergency_triggered")
	fs.DurationVar(&since, "since", 24*time.Hour, "Only events newer than this")
	fs.IntVar(&filter.Limit, "limit", 100, "Maximum number of events")
	if err := fs.Parse(args); err != nil {
		return compliance.AuditFilter{}, err
	}
	if fs.NArg() > 0 {
		return compliance.AuditFilter{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if filter.ConversationID < 0 {
		return compliance.AuditFilter{}, errors.New("conversation must be positive")
	}
	if filter.Limit <= 0 {
		return compliance.AuditFilter{}, errors.New("limit must be positive")
	}
	filter.EventType = compliance.AuditEventType(eventType)
	if since > 0 {
		filter.StartTime = now.Add(-since)
	}
	return filter, nil
}

func printEvents(ctx context.Context, audit *compliance.AuditService, filter compliance.AuditFilter, w io.Writer) error {
	if !audit.Enabled() {
		return errors.New("audit trail is not configured")
	}
	events, err := audit.QueryEvents(ctx, filter)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

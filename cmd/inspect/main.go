package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/boardgate/internal/audit"
	"github.com/danielpatrickdp/boardgate/internal/directory"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to boardgate.db")
	last := flag.Int("last", 20, "show N most recent events")
	contextID := flag.String("context", "", "filter to one boarding context")
	reason := flag.String("reason", "", "filter to one denial reason")
	deniedOnly := flag.Bool("denied-only", false, "show only denied decisions")
	daily := flag.String("daily", "", "show the daily summary for YYYY-MM-DD (or 'today')")
	sessionID := flag.String("session", "", "show every event of one session")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/boardgate.db [--last N] [--context id] [--denied-only] [--reason r] [--daily date] [--session id] [--json]")
		os.Exit(2)
	}

	store, err := directory.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	sink, err := audit.NewSink(store.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open audit log: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *daily != "":
		err = runDailyMode(sink, *daily, *contextID, *jsonOut)
	case *sessionID != "":
		err = runSessionMode(sink, *sessionID, *jsonOut)
	default:
		err = runListMode(sink, *last, *contextID, *reason, *deniedOnly, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(sink *audit.Sink, last int, contextID, reason string, deniedOnly, jsonOut bool) error {
	filtered := deniedOnly || reason != ""
	fetch := last
	if filtered {
		// Filters apply client-side; over-fetch so the table still fills.
		fetch = last * 10
	}
	events, err := sink.Recent(context.Background(), fetch, contextID, "")
	if err != nil {
		return err
	}

	if filtered {
		kept := events[:0]
		for _, e := range events {
			if e.Kind != audit.KindDecision || e.Authorized {
				continue
			}
			if reason != "" && e.Reason != reason {
				continue
			}
			kept = append(kept, e)
		}
		events = kept
		if len(events) > last {
			events = events[:last]
		}
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events found")
		return nil
	}

	// Store returns DESC, reverse for chronological
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	if jsonOut {
		return printJSON(events)
	}
	printEventTable(events)
	return nil
}

func printEventTable(events []audit.Event) {
	fmt.Printf("%-20s  %-10s  %-16s  %-6s  %-16s  %6s  %5s  %s\n",
		"Time", "Context", "Identity", "Auth", "Reason", "Dist", "Conf", "Session")
	fmt.Printf("%-20s+-%-10s+-%-16s+-%-6s+-%-16s+-%6s+-%5s+-%s\n",
		"--------------------", "----------", "----------------", "------", "----------------",
		"------", "-----", "--------")

	var granted, denied, errored int
	for _, e := range events {
		auth := "deny"
		reason := e.Reason
		dist, conf := fmt.Sprintf("%.3f", e.Distance), fmt.Sprintf("%.0f", e.Confidence)
		switch {
		case e.Kind == audit.KindError:
			auth = "error"
			reason = truncate(e.Error, 16)
			dist, conf = "—", "—"
			errored++
		case e.Authorized:
			auth = "grant"
			granted++
		default:
			denied++
		}
		fmt.Printf("%-20s  %-10s  %-16s  %-6s  %-16s  %6s  %5s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.ContextID, truncate(e.IdentityKey, 16),
			auth, reason, dist, conf, shortID(e.SessionID))
	}

	fmt.Printf("\n%d events: %d granted, %d denied, %d errors\n",
		len(events), granted, denied, errored)
}

// #endregion list-mode

// #region daily-mode

func runDailyMode(sink *audit.Sink, day, contextID string, jsonOut bool) error {
	if day == "today" {
		day = time.Now().UTC().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return fmt.Errorf("daily wants YYYY-MM-DD, got %q", day)
	}

	sum, err := sink.DailySummary(context.Background(), day, contextID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(sum)
	}

	scope := "all contexts"
	if contextID != "" {
		scope = contextID
	}
	fmt.Printf("Day:       %s\n", sum.Day)
	fmt.Printf("Context:   %s\n", scope)
	fmt.Printf("Total:     %d\n", sum.Total)
	fmt.Printf("Granted:   %d\n", sum.Granted)
	fmt.Printf("Denied:    %d\n", sum.Denied)
	fmt.Printf("Errors:    %d\n", sum.Errors)
	if len(sum.DeniedByReason) > 0 {
		fmt.Printf("\nDenied by reason:\n")
		for _, r := range []string{"no_match", "unknown_identity", "not_assigned"} {
			if n, ok := sum.DeniedByReason[r]; ok {
				fmt.Printf("  %-18s %d\n", r, n)
			}
		}
	}
	fmt.Printf("\nUnique identities: %d\n", sum.UniqueIdentities)
	return nil
}

// #endregion daily-mode

// #region session-mode

func runSessionMode(sink *audit.Sink, sessionID string, jsonOut bool) error {
	events, err := sink.SessionEvents(context.Background(), sessionID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events for session")
		return nil
	}
	if jsonOut {
		return printJSON(events)
	}
	printEventTable(events)
	return nil
}

// #endregion session-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-1] + "…"
	}
	return s
}

// #endregion output

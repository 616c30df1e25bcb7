// Command logquery reads and prunes the log entries lambder mirrors into its state database.
package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/polarfoxDev/lambder/internal/database"
	"github.com/polarfoxDev/lambder/internal/logging"
)

func main() {
	dbPath := flag.String("db", "/var/lib/lambder/state.db", "Path to the state database")
	runID := flag.Int("run", 0, "Filter by run ID (chronological output)")
	region := flag.String("region", "", "Filter by region")
	source := flag.String("source", "", "Filter by backup source")
	level := flag.String("level", "", "Filter by log level (DEBUG, INFO, WARN, ERROR)")
	since := flag.String("since", "", "Filter logs since time (RFC3339 format)")
	until := flag.String("until", "", "Filter logs until time (RFC3339 format)")
	limit := flag.Int("limit", 100, "Maximum number of logs to return")
	prune := flag.String("prune", "", "Prune logs older than duration (e.g., '720h' for 30 days)")

	flag.Parse()

	db, err := database.InitDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	logger := logging.New(db.GetDB(), os.Stderr)

	if *prune != "" {
		duration, err := time.ParseDuration(*prune)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid duration format: %v\n", err)
			os.Exit(1)
		}
		deleted, err := logger.PruneOldLogs(duration)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error pruning logs: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Pruned %d log entries older than %v\n", deleted, duration)
		return
	}

	var entries []logging.LogEntry
	if *runID != 0 && *region == "" && *source == "" && *level == "" && *since == "" && *until == "" {
		entries, err = logger.QueryByRunID(*runID, *limit)
	} else {
		opts := logging.QueryOptions{
			RunID:  *runID,
			Region: *region,
			Source: *source,
			Limit:  *limit,
		}
		if *level != "" {
			opts.Level = logging.ParseLevel(*level)
		}
		if opts.Since, err = parseTime(*since); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid since time format: %v\n", err)
			os.Exit(1)
		}
		if opts.Until, err = parseTime(*until); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid until time format: %v\n", err)
			os.Exit(1)
		}
		entries, err = logger.Query(opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying logs: %v\n", err)
		os.Exit(1)
	}

	if len(entries) == 0 {
		fmt.Println("No logs found matching criteria")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tLEVEL\tRUN\tREGION\tSOURCE\tMESSAGE")
	for _, entry := range entries {
		run := "-"
		if entry.RunID != 0 {
			run = fmt.Sprint(entry.RunID)
		}
		msg := entry.Message
		if len(msg) > 100 {
			msg = msg[:97] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Timestamp.Local().Format("2006-01-02 15:04:05"), entry.Level, run,
			dash(entry.Region), dash(entry.Source), msg)
	}
	w.Flush()
	fmt.Printf("\nShowing %d results\n", len(entries))
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

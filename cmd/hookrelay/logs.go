package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rsclarke/hookrelay/internal/client"
)

var logsFlags struct {
	rangeQuery
	page   int
	last   bool
	after  int64
	before int64
	count  int
	order  string
	skip   int
	limit  int
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print stored logs as flattened rows",
	Long: `Print stored logs as a JSON array of flattened rows. The first row
is the header row naming every column.

Selection (at most one):
  --page N                  page N of 1000 rows (--order asc|desc)
  --last                    newest --count rows
  --after ID / --before ID  --count rows after or before ID
  --from / --to             rows in a time range (RFC 3339)
  --min-id + --max-id       rows in an inclusive ID range
  (none)                    --limit rows starting at --skip`,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	f := logsCmd.Flags()
	f.IntVar(&logsFlags.page, "page", 0, "page number (1-based)")
	f.BoolVar(&logsFlags.last, "last", false, "show the newest logs")
	f.Int64Var(&logsFlags.after, "after", 0, "show logs after this ID")
	f.Int64Var(&logsFlags.before, "before", 0, "show logs before this ID")
	f.IntVar(&logsFlags.count, "count", 0, "number of rows for --last, --after and --before")
	f.StringVar(&logsFlags.order, "order", "", "page order (asc|desc)")
	f.IntVar(&logsFlags.skip, "skip", 0, "rows to skip")
	f.IntVar(&logsFlags.limit, "limit", 0, "maximum rows")
	f.StringVar(&logsFlags.from, "from", "", "range start (RFC 3339)")
	f.StringVar(&logsFlags.to, "to", "", "range end (RFC 3339)")
	f.Int64Var(&logsFlags.minID, "min-id", 0, "lowest ID (inclusive)")
	f.Int64Var(&logsFlags.maxID, "max-id", 0, "highest ID (inclusive)")
	logsCmd.MarkFlagsMutuallyExclusive("page", "last", "after", "before", "from", "min-id")
	logsCmd.MarkFlagsMutuallyExclusive("page", "last", "after", "before", "to", "max-id")
	logsCmd.MarkFlagsRequiredTogether("min-id", "max-id")
}

func runLogs(cmd *cobra.Command, args []string) error {
	path, query := logsRequest(cmd)

	rows, err := newClient().Logs(path, query)
	if errors.Is(err, client.ErrNotFound) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "No logs found.")
		return err
	}
	if err != nil {
		return err
	}
	return printRows(cmd.OutOrStdout(), rows)
}

// logsRequest maps the selection flags to an API path and query.
func logsRequest(cmd *cobra.Command) (string, url.Values) {
	flags := cmd.Flags()
	q := url.Values{}
	if logsFlags.count > 0 {
		q.Set("count", strconv.Itoa(logsFlags.count))
	}

	switch {
	case flags.Changed("page"):
		q = url.Values{}
		if logsFlags.order != "" {
			q.Set("order", logsFlags.order)
		}
		return "/v1/logs/pages/" + strconv.Itoa(logsFlags.page), q
	case logsFlags.last:
		return "/v1/logs/last", q
	case flags.Changed("after"):
		return "/v1/logs/after/" + strconv.FormatInt(logsFlags.after, 10), q
	case flags.Changed("before"):
		return "/v1/logs/before/" + strconv.FormatInt(logsFlags.before, 10), q
	case flags.Changed("min-id"):
		return "/v1/logs/ids", logsFlags.rangeQuery.values()
	case flags.Changed("from") || flags.Changed("to"):
		q = logsFlags.rangeQuery.values()
		if logsFlags.limit > 0 {
			q.Set("limit", strconv.Itoa(logsFlags.limit))
		}
		return "/v1/logs/range", q
	}

	q = url.Values{}
	if logsFlags.skip > 0 {
		q.Set("skip", strconv.Itoa(logsFlags.skip))
	}
	if logsFlags.limit > 0 {
		q.Set("limit", strconv.Itoa(logsFlags.limit))
	}
	return "/v1/logs", q
}

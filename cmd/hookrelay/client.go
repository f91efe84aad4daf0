package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/rsclarke/hookrelay/internal/client"
	"github.com/rsclarke/hookrelay/internal/config"
)

func newClient() *client.Client {
	return client.NewClient(config.Spec.GetString("api.url"))
}

// rangeQuery collects the shared from/to/id bounds of range-style commands.
type rangeQuery struct {
	from    string
	to      string
	afterID int64
	minID   int64
	maxID   int64
}

func (q rangeQuery) values() url.Values {
	v := url.Values{}
	if q.from != "" {
		v.Set("from", q.from)
	}
	if q.to != "" {
		v.Set("to", q.to)
	}
	if q.afterID > 0 {
		v.Set("after_id", strconv.FormatInt(q.afterID, 10))
	}
	if q.minID > 0 {
		v.Set("min_id", strconv.FormatInt(q.minID, 10))
	}
	if q.maxID > 0 {
		v.Set("max_id", strconv.FormatInt(q.maxID, 10))
	}
	return v
}

// printRows writes rows as an indented JSON array, one object per row.
func printRows(w io.Writer, rows []json.RawMessage) error {
	if _, err := fmt.Fprintln(w, "["); err != nil {
		return err
	}
	for i, row := range rows {
		sep := ","
		if i == len(rows)-1 {
			sep = ""
		}
		if _, err := fmt.Fprintf(w, "  %s%s\n", row, sep); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "]")
	return err
}

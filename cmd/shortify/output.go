package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/serroba/shortify/internal/health"
	"github.com/serroba/shortify/internal/history"
)

const timeLayout = "2006-01-02 15:04"

func printHistory(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No links yet")

		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSHORT URL\tORIGINAL URL\tCREATED")

	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.ID, e.ShortURL, e.OriginalURL, e.Created().Local().Format(timeLayout))
	}

	return tw.Flush()
}

func printReport(w io.Writer, report health.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, c := range report.Components {
		if c.Error != "" {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, c.Status, c.Error)
		} else {
			fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Status)
		}
	}

	fmt.Fprintf(tw, "overall\t%s\n", report.Status)

	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

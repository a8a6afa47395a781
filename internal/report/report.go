// Package report loads record files for offline MoM reports and renders the
// computed table as text.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
	"snowtrack/internal/metrics"
	"snowtrack/internal/store/memory"
)

// fileRecord mirrors one YAML entry. Values stay strings so the same parsers
// as the HTTP form apply.
type fileRecord struct {
	Customer      string `yaml:"customer"`
	Month         string `yaml:"month"`
	Consumption   string `yaml:"consumption"`
	ProjectStatus string `yaml:"project_status"`
	Region        string `yaml:"region"`
	Notes         string `yaml:"notes"`
}

type file struct {
	Records []fileRecord `yaml:"records"`
}

// LoadFile reads records from a YAML file.
func LoadFile(path string) ([]core.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML document holding either a bare list of records or a
// mapping with a records list. Entries are validated like form input; the
// first bad entry fails the whole load.
func Load(r io.Reader) ([]core.Record, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(r).Decode(&root); err != nil && err != io.EOF {
		return nil, invalidYAML(err)
	}

	var doc file
	if len(root.Content) > 0 {
		var err error
		switch node := root.Content[0]; node.Kind {
		case yaml.SequenceNode:
			err = node.Decode(&doc.Records)
		default:
			err = node.Decode(&doc)
		}
		if err != nil {
			return nil, invalidYAML(err)
		}
	}

	records := make([]core.Record, 0, len(doc.Records))
	for i, fr := range doc.Records {
		rec, err := fr.toRecord()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func invalidYAML(err error) error {
	return ierr.WithError(err).
		WithHint("Records file is not valid YAML").
		Mark(ierr.ErrValidation)
}

func (fr fileRecord) toRecord() (core.Record, error) {
	rec := core.Record{Customer: strings.TrimSpace(fr.Customer), Notes: fr.Notes}
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}

	var err error
	if rec.Month, err = core.ParseMonth(fr.Month); err != nil {
		return core.Record{}, err
	}
	if strings.TrimSpace(fr.Consumption) != "" {
		if rec.Consumption, err = core.ParseConsumption(fr.Consumption); err != nil {
			return core.Record{}, err
		}
	}
	rec.ProjectStatus = core.OnTrack
	if strings.TrimSpace(fr.ProjectStatus) != "" {
		if rec.ProjectStatus, err = core.ParseProjectStatus(fr.ProjectStatus); err != nil {
			return core.Record{}, err
		}
	}
	if rec.Region, err = core.ParseRegion(fr.Region); err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

// NewStore loads records into a fresh in-memory store, in file order.
func NewStore(records []core.Record) (*memory.Store, error) {
	return memory.NewWithRecords(records)
}

// WriteMoM prints the MoM table, one row per record in (customer, month) order.
func WriteMoM(w io.Writer, rows []metrics.Row, mode metrics.Mode) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tMONTH\tCONSUMPTION\tSTATUS\tREGION\tMOM CHANGE\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.DisplayID(),
			r.Customer,
			r.Month,
			FormatAmount(r.Consumption.InexactFloat64()),
			r.ProjectStatus.Label(),
			r.Region,
			metrics.FormatChange(r.Change, mode))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total := lo.SumBy(rows, func(r metrics.Row) float64 { return r.Consumption.InexactFloat64() })
	_, err := fmt.Fprintf(w, "\n%s records, total consumption %s\n",
		humanize.Comma(int64(len(rows))), FormatAmount(total))
	return err
}

// WriteCustomers prints one customer per line.
func WriteCustomers(w io.Writer, customers []string) error {
	for _, c := range customers {
		if _, err := fmt.Fprintln(w, c); err != nil {
			return err
		}
	}
	return nil
}

// FormatAmount renders an amount with thousands separators and two decimals.
func FormatAmount(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

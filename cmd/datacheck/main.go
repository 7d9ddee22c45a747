// Command datacheck cross-checks the school listing, the verification codes
// and the PDF directory, and prints one table row per listed file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"participant-gate/internal/codestore"
	"participant-gate/internal/config"
	"participant-gate/internal/listing"
	"participant-gate/internal/models"
	"participant-gate/internal/pathsafe"
	"participant-gate/internal/repository/scylla"
	"participant-gate/internal/util"
)

const (
	statusOK          = "ok"
	statusMissing     = "missing"
	statusOutsideRoot = "outside root"
	statusUnsafeName  = "unsafe name"
	statusNoCodes     = "no codes"
)

type row struct {
	School     string
	PDFFile    string
	Companions int
	Codes      int
	Status     string
}

// codeWriter stores verification codes in the gate's code table.
type codeWriter interface {
	Upsert(ctx context.Context, entry models.Entry) error
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit status: 0 when all
// rows are ok, 1 when some need attention and 2 when the check could not run.
func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("datacheck", flag.ContinueOnError)
	flags.SetOutput(stderr)
	timeout := flags.Duration("timeout", 30*time.Second, "Overall timeout for loading data")
	importCodes := flags.Bool("import", false, "Copy the verification code file into ScyllaDB before checking")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	logger := util.Init(cfg.Environment, cfg.Logging)
	defer util.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *importCodes && cfg.Gate.CodeSource != config.CodeSourceScylla {
		fmt.Fprintf(stderr, "-import requires GATE_CODE_SOURCE=%s\n", config.CodeSourceScylla)
		return 2
	}

	var source codestore.Source
	if cfg.Gate.CodeSource == config.CodeSourceScylla {
		client, err := scylla.NewScyllaClient(cfg.Scylla, logger)
		if err != nil {
			fmt.Fprintf(stderr, "code source: %v\n", err)
			return 2
		}
		defer client.Close()
		repo := scylla.NewCodeRepository(client, logger)
		if *importCodes {
			n, err := copyCodes(ctx, codestore.NewFileSource(cfg.CodesPath(), logger), repo)
			if err != nil {
				fmt.Fprintf(stderr, "import: %v\n", err)
				return 2
			}
			fmt.Fprintf(stderr, "imported codes for %d files from %s\n", n, cfg.CodesPath())
		}
		source = repo
	} else {
		source = codestore.NewFileSource(cfg.CodesPath(), logger)
	}

	records, err := listing.NewLoader(cfg.Gate.SchoolDataFiles, logger).Records(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "school data: %v\n", err)
		return 2
	}
	entries, err := source.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "verification codes: %v\n", err)
		return 2
	}

	rows := buildRows(records, entries, pathsafe.NewRoot(cfg.Gate.PDFDir))
	render(stdout, rows)

	if problems := lo.CountBy(rows, func(r row) bool { return r.Status != statusOK }); problems > 0 {
		fmt.Fprintf(stderr, "%d of %d files need attention\n", problems, len(rows))
		return 1
	}
	return 0
}

// copyCodes writes every entry of src to dst and returns how many were
// written. Entries with an empty file name are skipped.
func copyCodes(ctx context.Context, src codestore.Source, dst codeWriter) (int, error) {
	entries, err := src.Load(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, entry := range entries {
		if entry.PDFFile == "" {
			continue
		}
		if err := dst.Upsert(ctx, entry); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// buildRows produces one row per distinct (school, file) pair in listing
// order, sorted by school.
func buildRows(records []models.SchoolRecord, entries []models.Entry, root *pathsafe.Root) []row {
	var rows []row
	for _, group := range listing.Group(records) {
		for _, file := range group.Files {
			entry, _ := codestore.Lookup(entries, file.PDFFile)
			r := row{
				School:     group.School,
				PDFFile:    file.PDFFile,
				Companions: len(file.Companions),
				Codes:      len(entry.Codes),
				Status:     fileStatus(root, file.PDFFile),
			}
			if r.Status == statusOK && r.Codes == 0 {
				r.Status = statusNoCodes
			}
			rows = append(rows, r)
		}
	}
	return rows
}

func fileStatus(root *pathsafe.Root, name string) string {
	if err := pathsafe.CheckFileName(name); err != nil {
		return statusUnsafeName
	}
	_, err := root.Resolve(name)
	switch {
	case err == nil:
		return statusOK
	case errors.Is(err, pathsafe.ErrOutsideRoot):
		return statusOutsideRoot
	default:
		return statusMissing
	}
}

func render(w io.Writer, rows []row) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"School", "PDF File", "Companions", "Codes", "Status"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, r := range rows {
		table.Append([]string{
			r.School,
			r.PDFFile,
			strconv.Itoa(r.Companions),
			strconv.Itoa(r.Codes),
			r.Status,
		})
	}
	table.Render()
}

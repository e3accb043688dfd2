// Command inventory-check validates an inventory CSV export against a
// threshold rule set without a database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"satdigital/internal/domain"
	"satdigital/internal/ports"
	"satdigital/internal/services/compliance"
	"satdigital/internal/services/inventory"
	"satdigital/internal/services/rules"
)

// errNonCompliant makes -strict runs exit with status 2.
var errNonCompliant = errors.New("inventory has non-compliant rows")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := run(ctx, os.Args[1:], os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, errNonCompliant):
		os.Exit(2)
	case errors.Is(err, flag.ErrHelp):
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("inventory-check", flag.ContinueOnError)
	rulesPath := fs.String("rules", "", "YAML rule set (default: embedded rules)")
	asJSON := fs.Bool("json", false, "print the batch result as JSON")
	strict := fs.Bool("strict", false, "exit with status 2 when any row is non-compliant")
	remote := fs.Bool("remote", false, "treat rows without a work-mode column as home office")
	delimiter := fs.String("delimiter", "", "field delimiter (default: detect , or ;)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: inventory-check [flags] inventory.csv\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one CSV file is required")
	}

	loaded, err := rules.LoadFile(ctx, *rulesPath)
	if err != nil {
		return err
	}
	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()
	rows, err := readRows(f, *delimiter)
	if err != nil {
		return err
	}

	var opts []inventory.Option
	if *remote {
		opts = append(opts, inventory.AssumeRemote())
	}
	svc := compliance.NewService(compliance.StaticRules(loaded.Rules), inventory.New(opts...), nil)
	res, err := svc.ValidateBatch(ctx, rows, ports.RuleScope{})
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		render(out, res, loaded)
	}
	if *strict && res.Failed > 0 {
		return errNonCompliant
	}
	return nil
}

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F85149")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B949E"))
	headStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

func render(out io.Writer, res domain.InventoryBatchResult, loaded rules.Loaded) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers("ROW", "CPU", "RAM", "OS", "VERDICT", "REASONS").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			return cellStyle
		})
	for _, r := range res.Results {
		verdict := okStyle.Render("OK")
		if !r.Compliant {
			verdict = failStyle.Render("FAIL")
		}
		notes := r.Reasons
		if len(r.Observations) > 0 {
			notes = append(append([]string(nil), notes...), dimStyle.Render(strings.Join(r.Observations, "; ")))
		}
		t.Row(
			fmt.Sprint(r.Row),
			cpuLabel(r.Normalized.Processor),
			fmt.Sprintf("%d GB", r.Normalized.Memory.SizeGB),
			r.Normalized.OS.String(),
			verdict,
			strings.Join(notes, "; "),
		)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "%s %d compliant, %s %d non-compliant, %d parse warnings\n",
		okStyle.Render("✔"), res.Compliant, failStyle.Render("✘"), res.Failed, len(res.Warnings))
	for _, w := range res.Warnings {
		fmt.Fprintln(out, dimStyle.Render("  "+w.String()))
	}
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("rules %s from %s (sha256 %s)", loaded.Rules.Version, loaded.Source, loaded.SHA256)))
}

func cpuLabel(p domain.Processor) string {
	label := strings.TrimSpace(p.Vendor + " " + p.Model)
	if p.ClockGHz > 0 {
		label += fmt.Sprintf(" @ %.2fGHz", p.ClockGHz)
	}
	return label
}

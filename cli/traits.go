package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/xerrors"

	"github.com/coder/serpent"
	"github.com/searchd/analytics/analytics"
)

// traits prints the snapshot that would be attached to an identify, so
// operators can see exactly what is reported.
func (*RootCmd) traits() *serpent.Command {
	var (
		instance instanceFlags
		output   string
	)
	opts := instance.options()
	opts = append(opts, serpent.Option{
		Name:          "Output",
		Flag:          "output",
		FlagShorthand: "o",
		Default:       "text",
		Description:   "Output format.",
		Value:         serpent.EnumOf(&output, "text", "json"),
	})

	return &serpent.Command{
		Use:     "traits",
		Short:   "Show the system and instance traits reported by analytics",
		Options: opts,
		Handler: func(inv *serpent.Invocation) error {
			snapshot := instance.traitCollector().Collect(inv.Context())
			if output == "json" {
				enc := json.NewEncoder(inv.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(snapshot)
			}
			_, err := fmt.Fprintln(inv.Stdout, renderTraits(snapshot))
			if err != nil {
				return xerrors.Errorf("write traits: %w", err)
			}
			return nil
		},
	}
}

func renderTraits(snapshot analytics.Snapshot) string {
	system, instance := snapshot.System, snapshot.Instance

	tableWriter := table.NewWriter()
	tableWriter.SetStyle(table.StyleLight)
	tableWriter.Style().Options.SeparateColumns = false
	tableWriter.AppendHeader(table.Row{"Trait", "Value"})

	tableWriter.AppendRow(table.Row{"System"})
	tableWriter.AppendRows([]table.Row{
		{"  Distribution", system.Distribution},
		{"  Kernel version", system.KernelVersion},
		{"  OS version", system.OSVersion},
		{"  Architecture", system.Architecture},
		{"  Total RAM", humanize.IBytes(system.TotalMemory)},
		{"  Used RAM", humanize.IBytes(system.UsedMemory)},
		{"  CPUs", strconv.Itoa(system.CPUCount)},
		{"  Avg CPU frequency", fmt.Sprintf("%d MHz", system.AvgCPUFrequencyMHz)},
		{"  Total disk space", humanize.IBytes(system.TotalDiskSpace)},
		{"  Available disk space", humanize.IBytes(system.AvailableDiskSpace)},
	})
	tableWriter.AppendSeparator()

	tableWriter.AppendRow(table.Row{"Instance"})
	tableWriter.AppendRows([]table.Row{
		{"  Version", instance.Version},
		{"  Environment", instance.Environment},
		{"  Max index size", humanize.IBytes(instance.MaxIndexSize)},
		{"  Max task db size", humanize.IBytes(instance.MaxTaskDBSize)},
		{"  HTTP payload size limit", humanize.IBytes(instance.HTTPPayloadSizeLimit)},
		{"  Snapshot enabled", strconv.FormatBool(instance.SnapshotEnabled)},
		{"  Score details", strconv.FormatBool(instance.Features.ScoreDetails)},
		{"  Vector store", strconv.FormatBool(instance.Features.VectorStore)},
		{"  Metrics", strconv.FormatBool(instance.Features.Metrics)},
	})
	return tableWriter.Render()
}

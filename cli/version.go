package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/coder/serpent"
	"github.com/searchd/analytics/buildinfo"
)

// version prints the searchd-analytics version
func (*RootCmd) version() *serpent.Command {
	var outputJSON bool

	return &serpent.Command{
		Use:   "version",
		Short: "Show searchd-analytics version",
		Options: serpent.OptionSet{
			{
				Flag:        "json",
				Description: "Emit version information in machine-readable JSON format.",
				Value:       serpent.BoolOf(&outputJSON),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			if outputJSON {
				versionInfo := struct {
					Version   string `json:"version"`
					GoVersion string `json:"go_version"`
					Dev       bool   `json:"dev"`
				}{
					Version:   buildinfo.Version(),
					GoVersion: runtime.Version(),
					Dev:       buildinfo.IsDev(),
				}
				enc := json.NewEncoder(inv.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(versionInfo)
			}
			_, _ = fmt.Fprintf(inv.Stdout, "searchd-analytics %s (%s)\n", buildinfo.Version(), runtime.Version())
			return nil
		},
	}
}

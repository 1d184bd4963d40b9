package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"

	"github.com/coder/serpent"
	"github.com/searchd/analytics/analytics"
)

func (*RootCmd) identity() *serpent.Command {
	var instance instanceFlags
	return &serpent.Command{
		Use:   "identity",
		Short: "Print the installation identity stored in the database directory",
		Options: serpent.OptionSet{
			instance.dbPathOption(),
		},
		Handler: func(inv *serpent.Invocation) error {
			path := filepath.Join(instance.dbPath, analytics.IdentityFile)
			id, ok := analytics.ReadIdentity(afero.NewOsFs(), path)
			if !ok {
				return xerrors.Errorf("no installation identity at %q, one is created when the server first starts", path)
			}
			_, _ = fmt.Fprintln(inv.Stdout, id)
			return nil
		},
	}
}

package cli

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/xerrors"

	"github.com/spf13/pflag"
)

// ByteSize is a size option accepting human units such as "100 GiB" or
// "100MB".
type ByteSize uint64

var _ pflag.Value = (*ByteSize)(nil)

func ByteSizeOf(v *uint64) *ByteSize {
	return (*ByteSize)(v)
}

func (b *ByteSize) Set(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return xerrors.Errorf("parse size %q: %w", s, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

func (ByteSize) Type() string {
	return "size"
}

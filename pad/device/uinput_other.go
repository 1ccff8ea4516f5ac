//go:build !linux

package device

import "github.com/samber/oops"

func newUinputBinding(opts Options) (Binding, error) {
	return nil, oops.In("device").With("driver", "uinput").Wrapf(ErrUnsupported, "open %s", opts.Path)
}

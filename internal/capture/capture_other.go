//go:build !linux

package capture

import (
	"context"

	"layerlens/internal/engine"
)

type unsupportedSource struct{}

func newPlatformSource(Options) Source { return unsupportedSource{} }

func (unsupportedSource) Run(context.Context, func(engine.KeyEvent)) error {
	return ErrUnsupported
}

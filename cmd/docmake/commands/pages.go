package commands

import (
	derrors "git.home.luguber.info/inful/docmake/internal/errors"
)

// PagesCmd is the retired GitHub Pages target. It fails unconditionally and
// points users at its replacement.
type PagesCmd struct{}

// ErrDeprecatedTarget is returned so callers can map it to a distinct exit code.
var ErrDeprecatedTarget = derrors.New(derrors.CategoryValidation, derrors.SeverityFatal,
	"the pages target is deprecated, use `docmake html` instead")

func (p *PagesCmd) Run(_ *Global, _ *CLI) error {
	return ErrDeprecatedTarget
}

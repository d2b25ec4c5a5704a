package analyzer

import (
	"go/types"
)

func (a *Analyzer) check(path string, u *unit, imp types.ImporterFrom) []types.Error {
	var errs []types.Error
	conf := types.Config{
		Importer:    imp,
		FakeImportC: true,
		Error: func(err error) {
			if te, ok := err.(types.Error); ok {
				errs = append(errs, te)
			}
		},
	}
	// with an Error handler Check keeps going and the errors are already
	// collected
	_, _ = conf.Check(path, u.fset, u.files, nil)
	return errs
}

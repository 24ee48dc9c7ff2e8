package arena

import "github.com/cockroachdb/errors"

var (
	ErrInvalidSize = errors.New("arena: invalid window size or count")
	ErrExhausted   = errors.New("arena: no free window")
)

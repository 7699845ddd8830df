package postgres

import (
	"github.com/hmaung/salesync/internal/sync"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ sync.Store           = (*Store)(nil)
	_ sync.ClassifierStore = (*Store)(nil)
)

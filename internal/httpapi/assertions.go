package httpapi

import (
	"github.com/hmaung/salesync/internal/storage/memory"
	"github.com/hmaung/salesync/internal/storage/postgres"
)

// Compile-time interface assertions for the stores against HTTP API interfaces.
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"formulaevo/internal/model"
)

// Backend names accepted by Open.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// Kinds lists the accepted backend names, default first.
var Kinds = []string{KindMemory, KindSQLite}

var ErrUnknownKind = errors.New("unknown store kind")

// Store persists validation reports, evolution histories, invariant sets and
// the run index. Get methods report absence with ok=false and a nil error.
type Store interface {
	Init(ctx context.Context) error
	SaveValidationReport(ctx context.Context, report model.ValidationReport) error
	GetValidationReport(ctx context.Context, id string) (model.ValidationReport, bool, error)
	SaveHistory(ctx context.Context, history model.EvolutionHistory) error
	GetHistory(ctx context.Context, runID string) (model.EvolutionHistory, bool, error)
	SaveInvariantSet(ctx context.Context, set model.InvariantSet) error
	GetInvariantSet(ctx context.Context, id string) (model.InvariantSet, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}

// Open returns the backend named kind, matched case-insensitively. An empty
// kind selects memory. The sqlite database is not touched until Init.
func Open(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if sqlitePath == "" {
			return nil, fmt.Errorf("%s store needs a database path", KindSQLite)
		}
		return NewSQLiteStore(sqlitePath), nil
	}
	return nil, fmt.Errorf("%w %q (want one of %s)", ErrUnknownKind, kind, strings.Join(Kinds, ", "))
}

// Close releases the resources of backends that hold any.
func Close(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

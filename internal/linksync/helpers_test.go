package linksync

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/store"
	"github.com/roach88/riskctl/internal/testutil"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Hour)
}

type fixture struct {
	backend *testutil.CountingBackend
	st      *store.Store
	sync    *Synchronizer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := testutil.NewCountingBackend(nil)
	st := store.New(b)
	return &fixture{
		backend: b,
		st:      st,
		sync:    New(st, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
	}
}

// seed writes both collections directly and resets the save counters.
func (f *fixture) seed(t *testing.T, risks []record.Risk, controls []record.Control) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.st.SetRisks(ctx, risks))
	require.NoError(t, f.st.SetControls(ctx, controls))
	f.backend.ResetCounts()
}

func (f *fixture) risks(t *testing.T) []record.Risk {
	t.Helper()
	rs, err := f.st.Risks(context.Background())
	require.NoError(t, err)
	return rs
}

func (f *fixture) controls(t *testing.T) []record.Control {
	t.Helper()
	cs, err := f.st.Controls(context.Background())
	require.NoError(t, err)
	return cs
}

func (f *fixture) raw(collection string) string {
	return f.backend.Backend.(*testutil.MemoryBackend).Raw(collection)
}

func risk(id string, refs ...string) record.Risk {
	return record.Risk{ID: id, Title: "risk " + id, ControlRefs: record.Refs(refs).Clone()}
}

func control(id string, refs ...string) record.Control {
	return record.Control{ID: id, Reference: id, Title: "control " + id, RiskRefs: record.Refs(refs).Clone()}
}

func findRisk(rs []record.Risk, id string) record.Risk {
	for _, r := range rs {
		if r.ID == id {
			return r
		}
	}
	return record.Risk{}
}

func findControl(cs []record.Control, id string) record.Control {
	for _, c := range cs {
		if c.ID == id {
			return c
		}
	}
	return record.Control{}
}

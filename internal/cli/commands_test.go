package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/riskctl/internal/record"
	"github.com/roach88/riskctl/internal/store"
)

type jsonResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// runCLI runs riskctl against a SQLite database inside dir.
func runCLI(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("RISKCTL_BACKEND", "sqlite")
	t.Setenv("RISKCTL_DB", "")

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{
		"--db", filepath.Join(dir, "riskctl.db"),
		"--env-file", filepath.Join(dir, "absent.env"),
	}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, dir string, into any, args ...string) {
	t.Helper()
	out, err := runCLI(t, dir, append([]string{"--format", "json"}, args...)...)
	require.NoError(t, err, out)

	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status, out)
	if into != nil {
		require.NoError(t, json.Unmarshal(resp.Data, into))
	}
}

// seedStore writes records straight to the database, bypassing the registry.
func seedStore(t *testing.T, dir string, risks []record.Risk, controls []record.Control) {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(dir, "riskctl.db"))
	require.NoError(t, err)
	st := store.New(db)
	defer st.Close()

	ctx := context.Background()
	require.NoError(t, st.SetRisks(ctx, risks))
	require.NoError(t, st.SetControls(ctx, controls))
}

func TestRiskAndControlLifecycle(t *testing.T) {
	dir := t.TempDir()

	var risk record.Risk
	runJSON(t, dir, &risk, "risk", "add", "--title", "Vendor outage", "--likelihood", "3", "--impact", "4")
	assert.True(t, strings.HasPrefix(risk.ID, "RISK-"))
	assert.Equal(t, 12, risk.Score())

	var control record.Control
	runJSON(t, dir, &control, "control", "add", "--title", "Backups", "--type", "preventive", "--risk", risk.ID)
	assert.Equal(t, "CTRL-001", control.ID)
	assert.Equal(t, record.Refs{risk.ID}, control.RiskRefs)

	var shown record.Risk
	runJSON(t, dir, &shown, "risk", "show", risk.ID)
	assert.Equal(t, record.Refs{"CTRL-001"}, shown.ControlRefs)

	out, err := runCLI(t, dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	// Updating a title keeps the declared set.
	var renamed record.Risk
	runJSON(t, dir, &renamed, "risk", "update", risk.ID, "--title", "Supplier outage")
	assert.Equal(t, "Supplier outage", renamed.Title)
	assert.Equal(t, record.Refs{"CTRL-001"}, renamed.ControlRefs)
	assert.Equal(t, 3, renamed.Likelihood)

	runJSON(t, dir, nil, "risk", "delete", risk.ID)

	var after record.Control
	runJSON(t, dir, &after, "control", "show", "CTRL-001")
	assert.Empty(t, after.RiskRefs)
	assert.Equal(t, "Backups", after.Title)
}

func TestControlUpdateReplacesDeclaredSet(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir,
		[]record.Risk{{ID: "R1", Title: "a"}, {ID: "R2", Title: "b"}},
		[]record.Control{{ID: "CTRL-001", Reference: "CTRL-001", Title: "Backups"}},
	)

	runJSON(t, dir, nil, "control", "update", "CTRL-001", "--risk", "R1", "--risk", "R2")
	runJSON(t, dir, nil, "control", "update", "CTRL-001", "--risk", "R2")

	var risks []record.Risk
	runJSON(t, dir, &risks, "risk", "list")
	require.Len(t, risks, 2)
	assert.Empty(t, risks[0].ControlRefs)
	assert.Equal(t, record.Refs{"CTRL-001"}, risks[1].ControlRefs)
}

func TestRiskAdd_InvalidInput(t *testing.T) {
	dir := t.TempDir()

	out, err := runCLI(t, dir, "--format", "json", "risk", "add", "--title", "x", "--impact", "9")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalid, resp.Error.Code)
}

func TestRiskShow_NotFound(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "risk", "show", "R404")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E001]")
}

func TestControlList_BootstrapsLegacyData(t *testing.T) {
	dir := t.TempDir()
	t1 := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	seedStore(t, dir,
		[]record.Risk{{ID: "R1", Title: "a", ControlRefs: record.Refs{"CTRL-7"}}},
		[]record.Control{
			{ID: "abc123", Reference: "abc123", Title: "first", CreatedAt: t1},
			{ID: "CTRL-7", Reference: "CTRL-7", Title: "second", CreatedAt: t1.Add(time.Hour)},
			{ID: "CTRL-002", Reference: "CTRL-002", Title: "third", CreatedAt: t1.Add(2 * time.Hour)},
		},
	)

	var controls []record.Control
	runJSON(t, dir, &controls, "control", "list")
	require.Len(t, controls, 3)
	assert.Equal(t, "CTRL-001", controls[0].ID)
	assert.Equal(t, "first", controls[0].Title)
	assert.Equal(t, "CTRL-002", controls[1].ID)
	assert.Equal(t, record.Refs{"R1"}, controls[1].RiskRefs, "bootstrap reconciles")
	assert.Equal(t, "CTRL-003", controls[2].ID)

	var risk record.Risk
	runJSON(t, dir, &risk, "risk", "show", "R1")
	assert.Equal(t, record.Refs{"CTRL-002"}, risk.ControlRefs)
}

func TestCheck_ViolationsExitOne(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir,
		[]record.Risk{{ID: "R1", Title: "a", ControlRefs: record.Refs{"CTRL-001", "CTRL-404"}}},
		[]record.Control{{ID: "CTRL-001", Reference: "CTRL-001", Title: "Backups"}},
	)

	out, err := runCLI(t, dir, "--format", "json", "check")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	var res CheckResult
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.False(t, res.OK)
	require.Len(t, res.Violations, 2)
	assert.Equal(t, "missing_mirror", string(res.Violations[0].Kind))
	assert.Equal(t, "dangling", string(res.Violations[1].Kind))
	assert.Len(t, res.Digest, 64)

	// Checking writes nothing, so the digest is stable.
	out, err = runCLI(t, dir, "--format", "json", "check")
	require.Error(t, err)
	var again jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	var res2 CheckResult
	require.NoError(t, json.Unmarshal(again.Data, &res2))
	assert.Equal(t, res.Digest, res2.Digest)
}

func TestReconcile_DryRunThenApply(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir,
		[]record.Risk{{ID: "R1", Title: "a", ControlRefs: record.Refs{"CTRL-001", "CTRL-404"}}},
		[]record.Control{{ID: "CTRL-001", Reference: "CTRL-001", Title: "Backups"}},
	)

	var rep struct {
		RiskRefsAdded int  `json:"riskRefsAdded"`
		Pruned        int  `json:"pruned"`
		DryRun        bool `json:"dryRun"`
	}
	runJSON(t, dir, &rep, "reconcile", "--dry-run")
	assert.Equal(t, 1, rep.RiskRefsAdded)
	assert.True(t, rep.DryRun)

	_, err := runCLI(t, dir, "check")
	assert.Equal(t, ExitFailure, GetExitCode(err), "dry run writes nothing")

	runJSON(t, dir, &rep, "reconcile", "--prune-dangling")
	assert.Equal(t, 1, rep.RiskRefsAdded)
	assert.Equal(t, 1, rep.Pruned)

	out, err := runCLI(t, dir, "check")
	require.NoError(t, err, out)

	out, err = runCLI(t, dir, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")
}

func TestMigrate_Text(t *testing.T) {
	dir := t.TempDir()
	seedStore(t, dir, nil, []record.Control{
		{ID: "legacy", Reference: "legacy", Title: "x"},
	})

	out, err := runCLI(t, dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Renamed 1 control(s)")
	assert.Contains(t, out, "legacy -> CTRL-001")

	out, err = runCLI(t, dir, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")
}

func TestImportThenExport(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "register.yaml")
	require.NoError(t, os.WriteFile(bundlePath, []byte(`
risks:
  - id: R1
    title: Vendor outage
    controlRefs: [abc123]
controls:
  - id: abc123
    title: Backups
    createdAt: "2023-01-01T00:00:00Z"
`), 0o644))

	var rep struct {
		Risks     int `json:"risks"`
		Controls  int `json:"controls"`
		Migration struct {
			Mapping map[string]string `json:"mapping"`
		} `json:"migration"`
	}
	runJSON(t, dir, &rep, "import", bundlePath)
	assert.Equal(t, 1, rep.Risks)
	assert.Equal(t, map[string]string{"abc123": "CTRL-001"}, rep.Migration.Mapping)

	exportPath := filepath.Join(dir, "export.json")
	_, err := runCLI(t, dir, "export", "--as", "json", "-o", exportPath)
	require.NoError(t, err)

	data, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	var exported struct {
		Risks    []record.Risk    `json:"risks"`
		Controls []record.Control `json:"controls"`
	}
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported.Controls, 1)
	assert.Equal(t, "CTRL-001", exported.Controls[0].ID)
	assert.Equal(t, record.Refs{"R1"}, exported.Controls[0].RiskRefs)
	assert.Equal(t, record.Refs{"CTRL-001"}, exported.Risks[0].ControlRefs)

	// The export is itself importable.
	_, err = runCLI(t, dir, "import", exportPath)
	require.NoError(t, err)
}

func TestImport_InvalidBundle(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bundlePath, []byte("risks:\n  - id: R1\n    severity: high\n"), 0o644))

	out, err := runCLI(t, dir, "--format", "json", "import", bundlePath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp jsonResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeBundle, resp.Error.Code)
}

func TestMetricsFile(t *testing.T) {
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "riskctl.prom")

	_, err := runCLI(t, dir, "--metrics-file", metricsPath, "risk", "add", "--title", "Vendor outage")
	require.NoError(t, err)

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `riskctl_collection_writes_total{collection="risks",origin="primary"} 1`)
}

func TestBadgerBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badger")

	_, err := runCLI(t, dir, "--backend", "badger", "--db", path, "control", "add", "--title", "Backups")
	require.NoError(t, err)

	out, err := runCLI(t, dir, "--backend", "badger", "--db", path, "control", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "CTRL-001")
	assert.Contains(t, out, "Backups")
}

func TestUnknownBackend(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "--backend", "mongo", "risk", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown backend")
}

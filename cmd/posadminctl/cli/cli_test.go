package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posadmin/posadmin/internal/suppliers"
	"github.com/posadmin/posadmin/jobs"
)

type stubSuppliers struct {
	groups     []suppliers.DuplicateGroup
	merged     []suppliers.MergeResult
	mergeActor suppliers.Actor
	mergeCalls int

	importName string
	importMode string
	importData []byte
	importRes  suppliers.ImportResult
}

func (s *stubSuppliers) Duplicates(ctx context.Context) ([]suppliers.DuplicateGroup, error) {
	return s.groups, nil
}

func (s *stubSuppliers) MergeDuplicates(ctx context.Context, actor suppliers.Actor, key string) ([]suppliers.MergeResult, error) {
	s.mergeCalls++
	s.mergeActor = actor
	return s.merged, nil
}

func (s *stubSuppliers) Import(ctx context.Context, actor suppliers.Actor, filename string, data []byte, mode string) (suppliers.ImportResult, error) {
	s.importName = filename
	s.importMode = mode
	s.importData = data
	return s.importRes, nil
}

type stubJobs struct {
	triggered string
	stats     []jobs.QueueStats
	err       error
}

func (s *stubJobs) Trigger(ctx context.Context, typ string, at time.Time) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.triggered = typ
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: typ}, nil
}

func (s *stubJobs) Stats() ([]jobs.QueueStats, error) {
	return s.stats, s.err
}

func run(t *testing.T, env *Env, args ...string) (string, error) {
	t.Helper()
	released := false
	loader := func(ctx context.Context) (*Env, func(), error) {
		return env, func() { released = true }, nil
	}
	root := NewRootCmd(loader)
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		assert.True(t, released, "loader resources should be released")
	}
	return out.String(), err
}

func sampleGroups() []suppliers.DuplicateGroup {
	return []suppliers.DuplicateGroup{{
		Key:     "acme foods",
		Keep:    suppliers.Supplier{ID: 1, Name: "Acme Foods"},
		Dupes:   []suppliers.Supplier{{ID: 4, Name: "ACME  foods"}},
		Members: 2,
	}}
}

func TestDedupeDryRunDoesNotMerge(t *testing.T) {
	svc := &stubSuppliers{groups: sampleGroups()}
	out, err := run(t, &Env{Suppliers: svc}, "suppliers", "dedupe")
	require.NoError(t, err)
	assert.Contains(t, out, `"acme foods": keep #1 Acme Foods, merge #4 ACME  foods`)
	assert.Contains(t, out, "--apply")
	assert.Zero(t, svc.mergeCalls)
}

func TestDedupeApplyJSON(t *testing.T) {
	svc := &stubSuppliers{merged: []suppliers.MergeResult{{Key: "acme foods", KeptID: 1, Removed: []int64{4}}}}
	out, err := run(t, &Env{Suppliers: svc}, "suppliers", "dedupe", "--apply", "--json", "--as-user", "7")
	require.NoError(t, err)
	require.Equal(t, 1, svc.mergeCalls)
	assert.Equal(t, int64(7), svc.mergeActor.UserID)
	assert.Equal(t, "cli", svc.mergeActor.IP)

	var decoded []suppliers.MergeResult
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, []int64{4}, decoded[0].Removed)
}

func TestDedupeNoGroups(t *testing.T) {
	out, err := run(t, &Env{Suppliers: &stubSuppliers{}}, "suppliers", "dedupe")
	require.NoError(t, err)
	assert.Contains(t, out, "No duplicate suppliers found.")
}

func TestImportReadsFileAndPrintsRowErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.csv")
	require.NoError(t, os.WriteFile(path, []byte("name\nAcme\n"), 0o600))

	svc := &stubSuppliers{importRes: suppliers.ImportResult{
		Created: 1,
		Errors:  []suppliers.RowError{{Line: 3, Message: "name is required"}},
	}}
	out, err := run(t, &Env{Suppliers: svc}, "suppliers", "import", path, "--mode", "update")
	require.NoError(t, err)
	assert.Equal(t, "suppliers.csv", svc.importName)
	assert.Equal(t, suppliers.ImportUpdate, svc.importMode)
	assert.Equal(t, "name\nAcme\n", string(svc.importData))
	assert.Contains(t, out, "1 created")
	assert.Contains(t, out, "line 3: name is required")
}

func TestImportRejectsBadMode(t *testing.T) {
	_, err := run(t, &Env{Suppliers: &stubSuppliers{}}, "suppliers", "import", "x.csv", "--mode", "replace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mode")
}

func TestImportMissingFile(t *testing.T) {
	_, err := run(t, &Env{Suppliers: &stubSuppliers{}}, "suppliers", "import", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestJobsTrigger(t *testing.T) {
	q := &stubJobs{}
	out, err := run(t, &Env{Jobs: q}, "jobs", "trigger", jobs.TaskDocumentExpiry)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskDocumentExpiry, q.triggered)
	assert.Contains(t, out, "Enqueued "+jobs.TaskDocumentExpiry+" as task-1 on queue default.")
}

func TestJobsTriggerUnknownType(t *testing.T) {
	q := &stubJobs{}
	_, err := run(t, &Env{Jobs: q}, "jobs", "trigger", "mail:send")
	require.ErrorIs(t, err, jobs.ErrUnknownTask)
	assert.Empty(t, q.triggered)
}

func TestJobsInspect(t *testing.T) {
	q := &stubJobs{stats: []jobs.QueueStats{
		{Queue: jobs.QueueDefault, Pending: 2},
		{Queue: jobs.QueueMail, Retry: 1},
	}}
	out, err := run(t, &Env{Jobs: q}, "jobs", "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "QUEUE")
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "mail")

	out, err = run(t, &Env{Jobs: q}, "jobs", "inspect", "--json")
	require.NoError(t, err)
	var decoded []jobs.QueueStats
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 2, decoded[0].Pending)
}

func TestJobsInspectError(t *testing.T) {
	_, err := run(t, &Env{Jobs: &stubJobs{err: errors.New("redis down")}}, "jobs", "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestMissingDependency(t *testing.T) {
	_, err := run(t, &Env{}, "jobs", "inspect")
	assert.ErrorIs(t, err, errNotConfigured)
}

package suppliers

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posadmin/posadmin/internal/platform/httpx"
)

var admin = Actor{UserID: 1, IP: "10.0.0.1"}

func TestCreateGeneratesCodeAndHistory(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Code: "SUP-00041", Name: "Acme"})
	svc := newTestService(store, newMemFiles())

	sup, err := svc.Create(context.Background(), admin, Input{Name: "  Globex   Corp ", Email: "SALES@GLOBEX.COM"})
	require.NoError(t, err)
	assert.Equal(t, "SUP-00042", sup.Code)
	assert.Equal(t, "Globex Corp", sup.Name)
	assert.Equal(t, "sales@globex.com", sup.Email)
	assert.Equal(t, StatusActive, sup.Status)
	assert.Equal(t, StatePendingApproval, sup.WorkflowState)
	require.NotNil(t, sup.CreatedBy)
	assert.Equal(t, int64(1), *sup.CreatedBy)

	history, _ := store.WorkflowHistory(context.Background(), sup.ID)
	require.Len(t, history, 1)
	assert.Equal(t, StatePendingApproval, history[0].ToState)
	assert.Equal(t, []string{"supplier.created"}, store.actions())
}

func TestCreateRejectsDuplicates(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Code: "SUP-00001", Name: "Acme"})
	svc := newTestService(store, newMemFiles())

	_, err := svc.Create(context.Background(), admin, Input{Name: " ACME "})
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 409, httpx.StatusFor(err))

	_, err = svc.Create(context.Background(), admin, Input{Name: "Other", Code: "sup-00001"})
	assert.ErrorIs(t, err, ErrDuplicateCode)
	assert.Len(t, store.suppliers, 1)
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newMemStore(), newMemFiles())

	_, err := svc.Create(context.Background(), admin, Input{Email: "not-an-email", Phone: "call me", Status: "paused"})
	require.Error(t, err)
	fields := FieldErrors(err)
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "phone")
	assert.Contains(t, fields, "status")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateKeepsCodeAndChecksUniqueness(t *testing.T) {
	store := newMemStore(
		Supplier{ID: 1, Code: "SUP-00001", Name: "Acme"},
		Supplier{ID: 2, Code: "SUP-00002", Name: "Globex"},
	)
	svc := newTestService(store, newMemFiles())

	err := svc.Update(context.Background(), admin, 1, Input{Name: "globex"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	require.NoError(t, svc.Update(context.Background(), admin, 1, Input{Name: "Acme", City: "Springfield"}))
	sup, _ := store.Get(context.Background(), 1)
	assert.Equal(t, "SUP-00001", sup.Code)
	assert.Equal(t, "Springfield", sup.City)

	assert.ErrorIs(t, svc.Update(context.Background(), admin, 99, Input{Name: "Nope"}), ErrNotFound)
}

func TestDeleteRefusesSupplierWithProducts(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme"}, Supplier{ID: 2, Name: "Globex"})
	store.products[1] = 3
	files := newMemFiles()
	_, _ = files.Save(context.Background(), "suppliers/2/a.pdf", strings.NewReader("%PDF"))
	store.docs = append(store.docs, Document{ID: 7, SupplierID: 2, StoredName: "suppliers/2/a.pdf"})
	svc := newTestService(store, files)

	err := svc.Delete(context.Background(), admin, 1)
	assert.ErrorIs(t, err, ErrHasProducts)
	assert.Contains(t, store.suppliers, int64(1))

	require.NoError(t, svc.Delete(context.Background(), admin, 2))
	assert.NotContains(t, store.suppliers, int64(2))
	assert.Zero(t, files.count(), "document files are removed after delete")
}

func TestDeleteRollsBackOnActivityFailure(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme"})
	store.failOn = "RecordActivity"
	svc := newTestService(store, newMemFiles())

	assert.ErrorIs(t, svc.Delete(context.Background(), admin, 1), errInjected)
	assert.Contains(t, store.suppliers, int64(1))
}

func TestToggleStatus(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme", Status: StatusActive})
	svc := newTestService(store, newMemFiles())

	status, err := svc.ToggleStatus(context.Background(), admin, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, status)

	status, err = svc.ToggleStatus(context.Background(), admin, 1)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	_, err = svc.ToggleStatus(context.Background(), admin, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulk(t *testing.T) {
	store := newMemStore(
		Supplier{ID: 1, Name: "A"},
		Supplier{ID: 2, Name: "B"},
		Supplier{ID: 3, Name: "C"},
	)
	store.products[2] = 1
	svc := newTestService(store, newMemFiles())
	ctx := context.Background()

	res, err := svc.Bulk(ctx, admin, BulkDeactivate, []int64{1, 2, 2, -1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Affected)
	assert.Equal(t, StatusInactive, store.suppliers[2].Status)

	res, err = svc.Bulk(ctx, admin, BulkDelete, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Affected)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "2 supplier(s) deleted, 1 skipped because they have products", res.Message())
	assert.Len(t, store.suppliers, 1)

	_, err = svc.Bulk(ctx, admin, BulkActivate, nil)
	assert.ErrorIs(t, err, ErrNoSelection)
	_, err = svc.Bulk(ctx, admin, "archive", []int64{2})
	assert.ErrorIs(t, err, ErrBulkAction)
}

func TestSetWorkflowState(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme"})
	svc := newTestService(store, newMemFiles())
	ctx := context.Background()

	require.NoError(t, svc.SetWorkflowState(ctx, admin, 1, StateBlacklisted, " fraud "))
	assert.Equal(t, StateBlacklisted, store.suppliers[1].WorkflowState)
	// Any state may follow any other.
	require.NoError(t, svc.SetWorkflowState(ctx, admin, 1, StateApproved, ""))

	err := svc.SetWorkflowState(ctx, admin, 1, StateApproved, "")
	assert.ErrorIs(t, err, ErrSameState)
	assert.Equal(t, 400, httpx.StatusFor(err))
	assert.ErrorIs(t, svc.SetWorkflowState(ctx, admin, 1, "archived", ""), ErrInvalidState)

	history, _ := store.WorkflowHistory(ctx, 1)
	require.Len(t, history, 2)
	assert.Equal(t, StatePendingApproval, history[0].FromState)
	assert.Equal(t, "fraud", history[0].Reason)
}

func TestSetWorkflowStateTruncatesReasonByCharacter(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme"})
	svc := newTestService(store, newMemFiles())
	ctx := context.Background()

	reason := strings.Repeat("a", 499) + strings.Repeat("é", 10)
	require.NoError(t, svc.SetWorkflowState(ctx, admin, 1, StateSuspended, reason))

	history, _ := store.WorkflowHistory(ctx, 1)
	require.Len(t, history, 1)
	got := history[0].Reason
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxReasonRunes, utf8.RuneCountInString(got))
	assert.Equal(t, strings.Repeat("a", 499)+"é", got)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
}

func TestDetailLoadsRelatedRecords(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme"})
	store.docs = []Document{{ID: 10, SupplierID: 1, Title: "Contract"}}
	store.alerts = []Alert{{ID: 11, SupplierID: 1, Status: AlertOpen}, {ID: 12, SupplierID: 1, Status: AlertResolved}}
	store.metrics = []Metric{{ID: 13, SupplierID: 1, Score: 77}}
	svc := newTestService(store, newMemFiles())

	d, err := svc.Detail(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Acme", d.Supplier.Name)
	assert.Len(t, d.Documents, 1)
	assert.Len(t, d.OpenAlerts, 1)
	require.NotNil(t, d.LatestMetric)
	assert.Equal(t, 77.0, d.LatestMetric.Score)

	_, err = svc.Detail(context.Background(), 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommunications(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme"})
	svc := newTestService(store, newMemFiles())
	ctx := context.Background()

	past := fixedNow.AddDate(0, 0, -2)
	soon := fixedNow.AddDate(0, 0, 3)
	later := fixedNow.AddDate(0, 1, 0)
	_, err := svc.LogCommunication(ctx, admin, 1, CommunicationInput{Channel: "EMAIL", Direction: "outbound", Subject: "Price list", OccurredAt: &past, FollowUpAt: &past})
	require.NoError(t, err)
	_, err = svc.LogCommunication(ctx, admin, 1, CommunicationInput{Channel: "phone", Direction: "inbound", Subject: "Delivery", FollowUpAt: &soon})
	require.NoError(t, err)
	_, err = svc.LogCommunication(ctx, admin, 1, CommunicationInput{Channel: "meeting", Direction: "inbound", Subject: "Review", FollowUpAt: &later})
	require.NoError(t, err)

	_, err = svc.LogCommunication(ctx, admin, 1, CommunicationInput{Channel: "fax", Direction: "sideways"})
	fields := FieldErrors(err)
	assert.Contains(t, fields, "channel")
	assert.Contains(t, fields, "direction")
	assert.Contains(t, fields, "subject")

	items, err := svc.FollowUps(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].Overdue)
	assert.False(t, items[1].Overdue)

	id := items[0].ID
	require.NoError(t, svc.DeleteCommunication(ctx, admin, 1, id))
	assert.ErrorIs(t, svc.DeleteCommunication(ctx, admin, 1, id), ErrCommNotFound)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-05-01")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2026, d.Year())

	d, err = ParseDate("  ")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, err = ParseDate("01/05/2026")
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

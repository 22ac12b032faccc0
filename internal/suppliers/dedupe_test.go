package suppliers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"  Acme   Trading ":        "acme trading",
		"ACME\tTRADING":            "acme trading",
		"Stra\u00dfe GmbH":         "strasse gmbh",
		"\uff21\uff23\uff2d\uff25": "acme",
		"Caf\u00e9":                "caf\u00e9",
		"Cafe\u0301":               "caf\u00e9",
		"":                         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), "input %q", in)
	}
}

func TestGroupDuplicatesKeepsLowestID(t *testing.T) {
	groups := GroupDuplicates([]Supplier{
		{ID: 9, Name: "acme trading"},
		{ID: 3, Name: "Acme  Trading"},
		{ID: 5, Name: "ACME TRADING "},
		{ID: 4, Name: "Globex"},
		{ID: 6, Name: "Initech"},
		{ID: 2, Name: "initech"},
	})
	require.Len(t, groups, 2)

	assert.Equal(t, "acme trading", groups[0].Key)
	assert.Equal(t, int64(3), groups[0].Keep.ID)
	assert.Equal(t, []int64{5, 9}, groups[0].DropIDs())
	assert.Equal(t, 3, groups[0].Members)

	assert.Equal(t, "initech", groups[1].Key)
	assert.Equal(t, int64(2), groups[1].Keep.ID)
}

func TestMergeDuplicatesRepointsAndLogs(t *testing.T) {
	store := newMemStore(
		Supplier{ID: 1, Name: "Acme"},
		Supplier{ID: 2, Name: "ACME "},
		Supplier{ID: 3, Name: "Globex"},
		Supplier{ID: 4, Name: "globex"},
	)
	store.products[2] = 4
	store.docs = []Document{{ID: 20, SupplierID: 2}}
	svc := newTestService(store, newMemFiles())

	preview, err := svc.Duplicates(context.Background())
	require.NoError(t, err)
	require.Len(t, preview, 2)

	results, err := svc.MergeDuplicates(context.Background(), admin, "ACME")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1), results[0].KeptID)
	assert.Equal(t, []int64{2}, results[0].Removed)
	assert.Equal(t, int64(4), results[0].Moved["products"])

	assert.NotContains(t, store.suppliers, int64(2))
	assert.Contains(t, store.suppliers, int64(4), "other groups are untouched when a key is given")
	assert.Equal(t, 4, store.products[1])
	assert.Equal(t, int64(1), store.docs[0].SupplierID)
	assert.Equal(t, []string{"supplier.merged"}, store.actions())

	results, err = svc.MergeDuplicates(context.Background(), admin, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, store.suppliers, 2)
}

func TestMergeDuplicatesRollsBack(t *testing.T) {
	store := newMemStore(
		Supplier{ID: 1, Name: "Acme"},
		Supplier{ID: 2, Name: "acme"},
		Supplier{ID: 3, Name: "Globex"},
		Supplier{ID: 4, Name: "GLOBEX"},
	)
	store.failOn = "RecordActivity"
	svc := newTestService(store, newMemFiles())

	_, err := svc.MergeDuplicates(context.Background(), admin, "")
	require.ErrorIs(t, err, errInjected)
	assert.Len(t, store.suppliers, 4)
}

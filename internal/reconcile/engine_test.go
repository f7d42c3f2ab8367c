package reconcile_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/mdindex/internal/reconcile"
	"github.com/jackzampolin/mdindex/internal/store"
	"github.com/jackzampolin/mdindex/internal/testutil"
)

func newEngine(t *testing.T) *reconcile.Engine {
	t.Helper()
	return reconcile.New(reconcile.Config{Logger: testutil.Logger(t)})
}

func mustItem(t *testing.T, st store.Store, parentID int64, itemType, name string) int64 {
	t.Helper()
	ctx := context.Background()
	item := &store.MdItem{Type: itemType}
	if parentID != 0 {
		item.ParentID = &parentID
	}
	id, err := st.AddMdItem(ctx, item)
	require.NoError(t, err)
	_, err = st.AddMdItemName(ctx, id, name, true)
	require.NoError(t, err)
	return id
}

func mustPublication(t *testing.T, st store.Store, publisher, title string) (publisherID, pubID, rootID int64) {
	t.Helper()
	ctx := context.Background()
	publisherID, err := st.FindOrCreatePublisher(ctx, publisher)
	require.NoError(t, err)
	rootID = mustItem(t, st, 0, "journal", title)
	pubID, err = st.AddPublication(ctx, publisherID, rootID)
	require.NoError(t, err)
	return publisherID, pubID, rootID
}

func TestReplaceUnknownTitle(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	e := newEngine(t)
	root := mustItem(t, st, 0, "journal", "UNKNOWN_TITLE/issn=12345679")

	t.Run("synthesized title keeps synthesized name", func(t *testing.T) {
		got, err := e.ReplaceUnknownTitle(ctx, st, root, "UNKNOWN_TITLE", "UNKNOWN_TITLE/issn=12345679")
		require.NoError(t, err)
		require.Equal(t, "UNKNOWN_TITLE/issn=12345679", got)
	})

	t.Run("real title replaces synthesized name", func(t *testing.T) {
		_, err := st.AddMdItemName(ctx, root, "Journal of Tests", false)
		require.NoError(t, err)

		got, err := e.ReplaceUnknownTitle(ctx, st, root, "UNKNOWN_TITLE", "Journal of Tests")
		require.NoError(t, err)
		require.Equal(t, "Journal of Tests", got)

		names, err := st.MdItemNames(ctx, root)
		require.NoError(t, err)
		require.Equal(t, []store.ItemName{{Name: "Journal of Tests", Primary: true}}, names)
	})

	t.Run("synthesized title resolves to stored name", func(t *testing.T) {
		_, err := st.AddMdItemName(ctx, root, "UNKNOWN_TITLE/eissn=87654321", false)
		require.NoError(t, err)

		got, err := e.ReplaceUnknownTitle(ctx, st, root, "UNKNOWN_TITLE", "UNKNOWN_TITLE/eissn=87654321")
		require.NoError(t, err)
		require.Equal(t, "Journal of Tests", got)

		names, err := st.MdItemNames(ctx, root)
		require.NoError(t, err)
		require.Equal(t, []store.ItemName{{Name: "Journal of Tests", Primary: true}}, names)
	})
}

func TestFixUnknownPublishers(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	e := newEngine(t)

	const (
		pluginID = "org.example.TestPlugin"
		auKey    = "year~2020"
		unknown  = "UNKNOWN_PUBLISHER_1"
	)

	unknownID, oldPub, oldRoot := mustPublication(t, st, unknown, "UNKNOWN_TITLE/issn=12345679")
	_, err := st.AddIssn(ctx, oldRoot, "12345679", store.IdentifierPrint)
	require.NoError(t, err)
	shared := mustItem(t, st, oldRoot, "journal_article", "Shared")
	_, err = st.AddAuthors(ctx, shared, []string{"Doe, Jane"})
	require.NoError(t, err)
	moved := mustItem(t, st, oldRoot, "journal_article", "Moved")
	err = st.AddRequestAggregate(ctx, &store.RequestAggregate{
		PublicationID: oldPub, Kind: store.AggregateJournalType, Year: 2024, Month: 1, Requests: 3,
	})
	require.NoError(t, err)

	acmeID, acmePub, acmeRoot := mustPublication(t, st, "ACME", "Journal of Tests")
	target := mustItem(t, st, acmeRoot, "journal_article", "Shared")

	require.NoError(t, st.AddAuProblem(ctx, pluginID, auKey, unknown))
	require.NoError(t, st.AddAuProblem(ctx, pluginID, auKey, "unrelated"))

	var res reconcile.Result
	err = st.WithTx(ctx, func(tx store.Store) error {
		var err error
		res, err = e.FixUnknownPublishers(ctx, tx, reconcile.Target{
			PluginID:      pluginID,
			AuKey:         auKey,
			PublisherID:   acmeID,
			PublicationID: acmePub,
			MdItemID:      acmeRoot,
		}, []string{unknown, "unrelated"})
		return err
	})
	require.NoError(t, err)
	require.Equal(t, reconcile.Result{Publishers: 1, Publications: 1, MergedItems: 1, MovedItems: 1, Aggregates: 1}, res)

	_, found, err := st.FindPublisher(ctx, unknown)
	require.NoError(t, err)
	require.False(t, found)
	pubs, err := st.PublisherPublications(ctx, unknownID)
	require.NoError(t, err)
	require.Empty(t, pubs)

	children, err := st.ChildMdItems(ctx, acmeRoot)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{target, moved}, children)

	authors, err := st.Authors(ctx, target)
	require.NoError(t, err)
	require.Equal(t, []string{"Doe, Jane"}, authors)

	_, err = st.MdItemType(ctx, shared)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.MdItemType(ctx, oldRoot)
	require.ErrorIs(t, err, store.ErrNotFound)

	issns, err := st.Issns(ctx, acmeRoot)
	require.NoError(t, err)
	require.Equal(t, []store.Identifier{{Value: "12345679", Type: store.IdentifierPrint}}, issns)
	names, err := st.MdItemNames(ctx, acmeRoot)
	require.NoError(t, err)
	require.Equal(t, []store.ItemName{{Name: "Journal of Tests", Primary: true}}, names)

	aggs, err := st.RequestAggregates(ctx, acmePub)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	require.Equal(t, int64(3), aggs[0].Requests)

	problems, err := st.AuProblems(ctx, pluginID, auKey)
	require.NoError(t, err)
	require.Equal(t, []string{"unrelated"}, problems)

	t.Run("second run is a no-op", func(t *testing.T) {
		res, err := e.FixUnknownPublishers(ctx, st, reconcile.Target{
			PluginID:      pluginID,
			AuKey:         auKey,
			PublisherID:   acmeID,
			PublicationID: acmePub,
			MdItemID:      acmeRoot,
		}, []string{unknown})
		require.NoError(t, err)
		require.False(t, res.Changed())
	})
}

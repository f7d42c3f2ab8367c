package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/mdindex/internal/store"
	"github.com/jackzampolin/mdindex/internal/testutil"
)

func mustAuMd(t *testing.T, s store.Store, pluginID, auKey string) int64 {
	t.Helper()
	ctx := context.Background()
	platformID, err := s.FindOrCreatePlatform(ctx, "NO_PLATFORM")
	require.NoError(t, err)
	pluginSeq, err := s.FindOrCreatePlugin(ctx, pluginID, platformID)
	require.NoError(t, err)
	auID, err := s.FindOrCreateAu(ctx, pluginSeq, auKey)
	require.NoError(t, err)
	id, err := s.AddAuMd(ctx, &store.AuMd{AuID: auID, MdVersion: 1, CreationTime: 1})
	require.NoError(t, err)
	return id
}

func mustPublication(t *testing.T, s store.Store, publisherID int64, itemType, name string) (pubID, itemID int64) {
	t.Helper()
	ctx := context.Background()
	itemID, err := s.AddMdItem(ctx, &store.MdItem{Type: itemType})
	require.NoError(t, err)
	_, err = s.AddMdItemName(ctx, itemID, name, true)
	require.NoError(t, err)
	pubID, err = s.AddPublication(ctx, publisherID, itemID)
	require.NoError(t, err)
	return pubID, itemID
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)

	_, found, err := s.FindPublisher(ctx, "ACME")
	require.NoError(t, err)
	require.False(t, found)

	id, err := s.FindOrCreatePublisher(ctx, "ACME")
	require.NoError(t, err)
	name, found, err := s.PublisherName(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ACME", name)
	again, err := s.FindOrCreatePublisher(ctx, "ACME")
	require.NoError(t, err)
	require.Equal(t, id, again)

	require.NoError(t, s.DeletePublisher(ctx, id))
	_, found, err = s.FindPublisher(ctx, "ACME")
	require.NoError(t, err)
	require.False(t, found, "deleted publisher must not be served from cache")
}

func TestWithTx_RollbackDropsCachedIDs(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.FindOrCreatePublisher(ctx, "Ghost"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, found, err := s.FindPublisher(ctx, "Ghost")
	require.NoError(t, err)
	require.False(t, found)
}

func TestFindPublication(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)

	publisherID, err := s.FindOrCreatePublisher(ctx, "ACME")
	require.NoError(t, err)
	otherID, err := s.FindOrCreatePublisher(ctx, "Other")
	require.NoError(t, err)

	pubID, itemID := mustPublication(t, s, publisherID, "journal", "Journal of Tests")
	_, err = s.AddIssn(ctx, itemID, "12345678", store.IdentifierPrint)
	require.NoError(t, err)
	_, err = s.AddIssn(ctx, itemID, "87654321", store.IdentifierElectronic)
	require.NoError(t, err)

	t.Run("by print issn", func(t *testing.T) {
		got, found, err := s.FindPublicationByIssns(ctx, publisherID, "12345678", "", "journal")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, pubID, got)
	})

	t.Run("by electronic issn only", func(t *testing.T) {
		got, found, err := s.FindPublicationByIssns(ctx, publisherID, "00000000", "87654321", "journal")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, pubID, got)
	})

	t.Run("issn with wrong type", func(t *testing.T) {
		_, found, err := s.FindPublicationByIssns(ctx, publisherID, "87654321", "", "journal")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("other publisher", func(t *testing.T) {
		_, found, err := s.FindPublicationByIssns(ctx, otherID, "12345678", "", "journal")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("other item type", func(t *testing.T) {
		_, found, err := s.FindPublicationByIssns(ctx, publisherID, "12345678", "", "book")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("by name", func(t *testing.T) {
		second, _ := mustPublication(t, s, publisherID, "journal", "Journal of Tests")
		got, err := s.FindPublicationsByName(ctx, publisherID, "Journal of Tests", "journal")
		require.NoError(t, err)
		require.Equal(t, []int64{pubID, second}, got)
	})

	t.Run("no identifiers", func(t *testing.T) {
		_, found, err := s.FindPublicationByIsbns(ctx, publisherID, "", "", "book")
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestMdItemData(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	auMdID := mustAuMd(t, s, "org.example.Plugin", "base_url~x")

	itemID, err := s.AddMdItem(ctx, &store.MdItem{Type: "journal_article", AuMdID: &auMdID})
	require.NoError(t, err)

	added, err := s.AddURLs(ctx, itemID, map[string]string{
		store.AccessFeature: "http://example.com/a1",
		"fulltext":          "http://example.com/a1.pdf",
	})
	require.NoError(t, err)
	require.Equal(t, 2, added)

	got, found, err := s.FindMdItem(ctx, "journal_article", auMdID, "http://example.com/a1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, itemID, got)

	t.Run("authors append in order without duplicates", func(t *testing.T) {
		n, err := s.AddAuthors(ctx, itemID, []string{"Smith, J.", "Doe, A."})
		require.NoError(t, err)
		require.Equal(t, 2, n)
		n, err = s.AddAuthors(ctx, itemID, []string{"Doe, A.", "Roe, B."})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		authors, err := s.Authors(ctx, itemID)
		require.NoError(t, err)
		if diff := cmp.Diff([]string{"Smith, J.", "Doe, A.", "Roe, B."}, authors); diff != "" {
			t.Errorf("authors mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("bib item merges non-empty fields", func(t *testing.T) {
		require.NoError(t, s.UpsertBibItem(ctx, &store.BibItem{MdItemID: itemID, Volume: "1", Issue: "2"}))
		require.NoError(t, s.UpsertBibItem(ctx, &store.BibItem{MdItemID: itemID, StartPage: "10", Issue: "3"}))

		bib, err := s.BibItem(ctx, itemID)
		require.NoError(t, err)
		want := &store.BibItem{MdItemID: itemID, Volume: "1", Issue: "3", StartPage: "10"}
		if diff := cmp.Diff(want, bib); diff != "" {
			t.Errorf("bib item mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("doi keeps the first value", func(t *testing.T) {
		require.NoError(t, s.AddDoi(ctx, itemID, "10.1/a"))
		require.NoError(t, s.AddDoi(ctx, itemID, "10.1/b"))
		doi, found, err := s.Doi(ctx, itemID)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "10.1/a", doi)
	})

	t.Run("primary name update", func(t *testing.T) {
		_, err := s.AddMdItemName(ctx, itemID, "Old", true)
		require.NoError(t, err)
		_, err = s.AddMdItemName(ctx, itemID, "New", false)
		require.NoError(t, err)
		require.NoError(t, s.UpdatePrimaryName(ctx, itemID, "New"))

		names, err := s.MdItemNames(ctx, itemID)
		require.NoError(t, err)
		if diff := cmp.Diff([]store.ItemName{{Name: "New", Primary: true}}, names); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("remove au items", func(t *testing.T) {
		n, err := s.RemoveAuMetadataItems(ctx, "org.example.Plugin", "base_url~x")
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		urls, err := s.URLs(ctx, itemID)
		require.NoError(t, err)
		require.Empty(t, urls)
		_, found, err := s.FindMdItem(ctx, "journal_article", auMdID, "http://example.com/a1")
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestDeleteMdItem_Descendants(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)

	publisherID, err := s.FindOrCreatePublisher(ctx, "ACME")
	require.NoError(t, err)
	_, rootID := mustPublication(t, s, publisherID, "book_series", "Series")
	bookID, err := s.AddMdItem(ctx, &store.MdItem{Type: "book", ParentID: &rootID})
	require.NoError(t, err)
	chapterID, err := s.AddMdItem(ctx, &store.MdItem{Type: "book_chapter", ParentID: &bookID})
	require.NoError(t, err)
	_, err = s.AddKeywords(ctx, chapterID, []string{"x"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteMdItem(ctx, bookID))

	children, err := s.ChildMdItems(ctx, rootID)
	require.NoError(t, err)
	require.Empty(t, children)
	keywords, err := s.Keywords(ctx, chapterID)
	require.NoError(t, err)
	require.Empty(t, keywords)

	_, err = s.MdItemType(ctx, chapterID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.True(t, store.IsStoreError(err))
}

func TestFindAuPublisher(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	auMdID := mustAuMd(t, s, "org.example.Plugin", "k1")

	publisherID, err := s.FindOrCreatePublisher(ctx, "ACME")
	require.NoError(t, err)
	_, rootID := mustPublication(t, s, publisherID, "journal", "J")
	_, err = s.AddMdItem(ctx, &store.MdItem{Type: "journal_article", ParentID: &rootID, AuMdID: &auMdID})
	require.NoError(t, err)

	got, found, err := s.FindAuPublisher(ctx, "org.example.Plugin", "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, publisherID, got)

	_, found, err = s.FindAuPublisher(ctx, "org.example.Plugin", "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPendingAus(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)

	added, err := s.AddPendingAus(ctx, []store.AuRef{
		{PluginID: "p", AuKey: "a"},
		{PluginID: "p", AuKey: "b"},
	}, false)
	require.NoError(t, err)
	require.Equal(t, 2, added)

	t.Run("existing aus keep their place", func(t *testing.T) {
		added, err := s.AddPendingAus(ctx, []store.AuRef{
			{PluginID: "p", AuKey: "a"},
			{PluginID: "p", AuKey: "c"},
		}, true)
		require.NoError(t, err)
		require.Equal(t, 1, added)

		entries, err := s.EnabledPendingAus(ctx)
		require.NoError(t, err)
		want := []store.PendingEntry{
			{PluginID: "p", AuKey: "a", Priority: 0, FullReindex: true, IsNew: true},
			{PluginID: "p", AuKey: "b", Priority: 1, IsNew: true},
			{PluginID: "p", AuKey: "c", Priority: 2, FullReindex: true, IsNew: true},
		}
		if diff := cmp.Diff(want, entries); diff != "" {
			t.Errorf("pending mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("indexed aus are not new", func(t *testing.T) {
		mustAuMd(t, s, "p", "b")
		entries, err := s.EnabledPendingAus(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		require.False(t, entries[1].IsNew)
	})

	t.Run("sentinel priorities are not enabled", func(t *testing.T) {
		require.NoError(t, s.SetPendingAu(ctx, "p", "a", store.PriorityFailed, false))
		require.NoError(t, s.SetPendingAu(ctx, "p", "d", store.PriorityDisabled, false))

		n, err := s.EnabledPendingCount(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		failed, err := s.PendingAusWithPriority(ctx, store.PriorityFailed)
		require.NoError(t, err)
		require.Equal(t, []store.AuRef{{PluginID: "p", AuKey: "a"}}, failed)

		pending, err := s.IsAuPending(ctx, "p", "d")
		require.NoError(t, err)
		require.True(t, pending)
	})

	t.Run("remove disabled only removes disabled rows", func(t *testing.T) {
		require.NoError(t, s.RemoveDisabledPendingAu(ctx, "p", "a"))
		require.NoError(t, s.RemoveDisabledPendingAu(ctx, "p", "d"))

		pending, err := s.IsAuPending(ctx, "p", "a")
		require.NoError(t, err)
		require.True(t, pending)
		pending, err = s.IsAuPending(ctx, "p", "d")
		require.NoError(t, err)
		require.False(t, pending)
	})

	t.Run("appends after the highest enabled priority", func(t *testing.T) {
		_, err := s.AddPendingAus(ctx, []store.AuRef{{PluginID: "p", AuKey: "e"}}, false)
		require.NoError(t, err)
		entries, err := s.EnabledPendingAus(ctx)
		require.NoError(t, err)
		last := entries[len(entries)-1]
		require.Equal(t, "e", last.AuKey)
		require.Equal(t, int64(3), last.Priority)
	})
}

func TestAuProblems(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)

	require.NoError(t, s.AddAuProblem(ctx, "p", "a", "UNKNOWN_PUBLISHER_1"))
	require.NoError(t, s.AddAuProblem(ctx, "p", "a", "UNKNOWN_PUBLISHER_1"))

	problems, err := s.AuProblems(ctx, "p", "a")
	require.NoError(t, err)
	require.Equal(t, []string{"UNKNOWN_PUBLISHER_1"}, problems)

	require.NoError(t, s.RemoveAuProblem(ctx, "p", "a", "UNKNOWN_PUBLISHER_1"))
	problems, err = s.AuProblems(ctx, "p", "a")
	require.NoError(t, err)
	require.Empty(t, problems)
}

func TestMergeRequestAggregates(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)

	publisherID, err := s.FindOrCreatePublisher(ctx, "ACME")
	require.NoError(t, err)
	fromID, _ := mustPublication(t, s, publisherID, "journal", "A")
	toID, _ := mustPublication(t, s, publisherID, "journal", "B")

	require.NoError(t, s.AddRequestAggregate(ctx, &store.RequestAggregate{
		PublicationID: fromID, Kind: store.AggregateJournalType, Year: 2024, Month: 1, Requests: 3, HTMLRequests: 2,
	}))
	require.NoError(t, s.AddRequestAggregate(ctx, &store.RequestAggregate{
		PublicationID: fromID, Kind: store.AggregateJournalType, Year: 2024, Month: 2, Requests: 5,
	}))
	require.NoError(t, s.AddRequestAggregate(ctx, &store.RequestAggregate{
		PublicationID: toID, Kind: store.AggregateJournalType, Year: 2024, Month: 1, Requests: 1, HTMLRequests: 1,
	}))

	n, err := s.MergeRequestAggregates(ctx, fromID, toID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	from, err := s.RequestAggregates(ctx, fromID)
	require.NoError(t, err)
	require.Empty(t, from)

	to, err := s.RequestAggregates(ctx, toID)
	require.NoError(t, err)
	require.Len(t, to, 2)
	byMonth := map[int]store.RequestAggregate{}
	for _, r := range to {
		byMonth[r.Month] = r
	}
	require.Equal(t, int64(4), byMonth[1].Requests)
	require.Equal(t, int64(3), byMonth[1].HTMLRequests)
	require.Equal(t, int64(5), byMonth[2].Requests)
}

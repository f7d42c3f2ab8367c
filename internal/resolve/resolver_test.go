package resolve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/mdindex/internal/metadata"
	"github.com/jackzampolin/mdindex/internal/resolve"
	"github.com/jackzampolin/mdindex/internal/store"
	"github.com/jackzampolin/mdindex/internal/testutil"
)

func newResolver(t *testing.T) *resolve.Resolver {
	t.Helper()
	return resolve.NewResolver(resolve.ResolverConfig{Logger: testutil.Logger(t)})
}

func mustPublisher(t *testing.T, st store.Store, name string) int64 {
	t.Helper()
	id, err := st.FindOrCreatePublisher(context.Background(), name)
	require.NoError(t, err)
	return id
}

func TestFindOrCreatePublication_Journal(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	r := newResolver(t)
	acme := mustPublisher(t, st, "ACME")

	ref := resolve.PublicationRef{
		Type:          metadata.PublicationJournal,
		Title:         "Journal of Tests",
		PIssn:         "12345679",
		ProprietaryID: "JOT",
	}
	id, err := r.FindOrCreatePublication(ctx, st, acme, ref)
	require.NoError(t, err)

	again, err := r.FindOrCreatePublication(ctx, st, acme, ref)
	require.NoError(t, err)
	require.Equal(t, id, again)

	pubs, err := st.PublisherPublications(ctx, acme)
	require.NoError(t, err)
	require.Equal(t, []int64{id}, pubs)

	root, err := st.PublicationMdItem(ctx, id)
	require.NoError(t, err)
	typ, err := st.MdItemType(ctx, root)
	require.NoError(t, err)
	require.Equal(t, metadata.ItemTypeJournal, typ)

	issns, err := st.Issns(ctx, root)
	require.NoError(t, err)
	require.Equal(t, []store.Identifier{{Value: "12345679", Type: store.IdentifierPrint}}, issns)
	ids, err := st.ProprietaryIDs(ctx, root)
	require.NoError(t, err)
	require.Equal(t, []string{"JOT"}, ids)

	t.Run("new issn on matched publication is added", func(t *testing.T) {
		ref := ref
		ref.EIssn = "87654321"
		got, err := r.FindOrCreatePublication(ctx, st, acme, ref)
		require.NoError(t, err)
		require.Equal(t, id, got)

		issns, err := st.Issns(ctx, root)
		require.NoError(t, err)
		require.ElementsMatch(t, []store.Identifier{
			{Value: "12345679", Type: store.IdentifierPrint},
			{Value: "87654321", Type: store.IdentifierElectronic},
		}, issns)
	})

	t.Run("other publisher gets its own publication", func(t *testing.T) {
		other := mustPublisher(t, st, "Other")
		got, err := r.FindOrCreatePublication(ctx, st, other, ref)
		require.NoError(t, err)
		require.NotEqual(t, id, got)
	})
}

func TestFindOrCreatePublication_JournalWithoutTitleOrIssn(t *testing.T) {
	st := testutil.Store(t)
	r := newResolver(t)
	acme := mustPublisher(t, st, "ACME")

	_, err := r.FindOrCreatePublication(context.Background(), st, acme, resolve.PublicationRef{
		Type:          metadata.PublicationJournal,
		ProprietaryID: "JOT",
	})
	require.Error(t, err)
	require.True(t, metadata.IsMetadataError(err))
	require.ErrorIs(t, err, metadata.ErrNoTitle)
}

func TestFindOrCreatePublication_BookSeries(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	r := newResolver(t)
	acme := mustPublisher(t, st, "ACME")

	ref := resolve.PublicationRef{
		Type:        metadata.PublicationBookSeries,
		Title:       "Volume One",
		SeriesTitle: "Lecture Notes",
		PIssn:       "03029743",
		PIsbn:       "9783161484100",
	}
	bookID, err := r.FindOrCreatePublication(ctx, st, acme, ref)
	require.NoError(t, err)

	seriesID, found, err := r.FindPublication(ctx, st, acme,
		resolve.Identity{Title: "Lecture Notes", PIssn: "03029743"}, metadata.ItemTypeBookSeries)
	require.NoError(t, err)
	require.True(t, found)
	require.NotEqual(t, bookID, seriesID)

	seriesRoot, err := st.PublicationMdItem(ctx, seriesID)
	require.NoError(t, err)
	bookRoot, err := st.PublicationMdItem(ctx, bookID)
	require.NoError(t, err)

	children, err := st.ChildMdItems(ctx, seriesRoot)
	require.NoError(t, err)
	require.Equal(t, []int64{bookRoot}, children)

	typ, err := st.MdItemType(ctx, bookRoot)
	require.NoError(t, err)
	require.Equal(t, metadata.ItemTypeBook, typ)

	isbns, err := st.Isbns(ctx, bookRoot)
	require.NoError(t, err)
	require.Equal(t, []store.Identifier{{Value: "9783161484100", Type: store.IdentifierPrint}}, isbns)
	issns, err := st.Issns(ctx, bookRoot)
	require.NoError(t, err)
	require.Empty(t, issns, "series ISSNs belong to the series root")

	again, err := r.FindOrCreatePublication(ctx, st, acme, ref)
	require.NoError(t, err)
	require.Equal(t, bookID, again)

	pubs, err := st.PublisherPublications(ctx, acme)
	require.NoError(t, err)
	require.Len(t, pubs, 2)
}

func TestFindPublication_NameMatchKeepsIdentifiersApart(t *testing.T) {
	ctx := context.Background()
	st := testutil.Store(t)
	r := newResolver(t)
	acme := mustPublisher(t, st, "ACME")

	journal := func(issn string) resolve.PublicationRef {
		return resolve.PublicationRef{Type: metadata.PublicationJournal, Title: "Annals", PIssn: issn}
	}

	first, err := r.FindOrCreatePublication(ctx, st, acme, journal("11111111"))
	require.NoError(t, err)
	second, err := r.FindOrCreatePublication(ctx, st, acme, journal("22222222"))
	require.NoError(t, err)
	require.NotEqual(t, first, second, "same title with a different ISSN is a different journal")

	nameOnly, err := r.FindOrCreatePublication(ctx, st, acme, journal(""))
	require.NoError(t, err)
	require.NotEqual(t, first, nameOnly)
	require.NotEqual(t, second, nameOnly)

	again, err := r.FindOrCreatePublication(ctx, st, acme, journal(""))
	require.NoError(t, err)
	require.Equal(t, nameOnly, again)

	t.Run("books", func(t *testing.T) {
		book := func(isbn string) resolve.PublicationRef {
			return resolve.PublicationRef{Type: metadata.PublicationBook, Title: "Handbook", PIsbn: isbn}
		}
		a, err := r.FindOrCreatePublication(ctx, st, acme, book("9783161484100"))
		require.NoError(t, err)
		b, err := r.FindOrCreatePublication(ctx, st, acme, book("9780306406157"))
		require.NoError(t, err)
		require.NotEqual(t, a, b)

		got, found, err := r.FindPublication(ctx, st, acme,
			resolve.Identity{Title: "Handbook", PIsbn: "9780306406157"}, metadata.ItemTypeBook)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, b, got)
	})
}

func TestSynthesizeTitle(t *testing.T) {
	tests := []struct {
		name string
		rec  metadata.Record
		want string
	}{
		{"isbn", metadata.Record{Isbn: "9783161484100", Issn: "12345679"}, "UNKNOWN_TITLE/isbn=9783161484100"},
		{"eisbn", metadata.Record{Eisbn: "9783161484100"}, "UNKNOWN_TITLE/eisbn=9783161484100"},
		{"issn", metadata.Record{Issn: "12345679", Eissn: "87654321"}, "UNKNOWN_TITLE/issn=12345679"},
		{"eissn", metadata.Record{Eissn: "87654321"}, "UNKNOWN_TITLE/eissn=87654321"},
		{"proprietary", metadata.Record{ProprietaryID: "JOT"}, "UNKNOWN_TITLE/journalId=JOT"},
		{"fallback", metadata.Record{}, "UNKNOWN_TITLE/id=42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, resolve.SynthesizeTitle(tt.rec, "42"))
		})
	}

	require.Equal(t, "UNKNOWN_SERIES/seriesId=LNCS",
		resolve.SynthesizeSeriesTitle(metadata.Record{ProprietarySeriesID: "LNCS"}, "x"))
	require.Equal(t, "UNKNOWN_SERIES/id=Volume One",
		resolve.SynthesizeSeriesTitle(metadata.Record{}, "Volume One"))
}

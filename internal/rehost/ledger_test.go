package rehost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-blog/internal/identity"
	"github.com/goliatone/go-blog/internal/writer"
	"github.com/goliatone/go-blog/pkg/testsupport"
)

func newTestLedger(t *testing.T) *BunLedger {
	t.Helper()
	ledger := NewBunLedger(testsupport.NewSQLiteMemoryDB(t))
	require.NoError(t, ledger.Migrate(context.Background()))
	return ledger
}

func TestBunLedgerUpsertsPerArticleAndURL(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, ledger.Record(ctx, Record{
		ArticlePath: "a/post.md",
		SourceURL:   "https://x.test/a.png",
		Hash:        "old",
		Extension:   "png",
		LocalPath:   "images/old.png",
		RehostedAt:  first,
	}))
	require.NoError(t, ledger.Record(ctx, Record{
		ArticlePath: "a/post.md",
		SourceURL:   "https://x.test/a.png",
		Hash:        "new",
		Extension:   "png",
		LocalPath:   "images/new.png",
		RehostedAt:  first.Add(time.Hour),
	}))

	records, err := ledger.ForArticle(ctx, "a/post.md")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "new", records[0].Hash)
	require.Equal(t, identity.ArticleUUID("a/post.md"), records[0].ArticleID)
}

func TestRehosterRecordsIntoLedger(t *testing.T) {
	server := newImageServer(t)
	root := t.TempDir()
	ledger := newTestLedger(t)

	r, err := New(Options{
		PostsRoot: root,
		Writer:    writer.New(writer.Options{}),
		Ledger:    ledger,
	})
	require.NoError(t, err)

	body := "![a](" + server.URL + "/a.png)"
	writePost(t, root, "b/post.md", body)
	_, err = r.Rehost(context.Background(), "b/post.md", body)
	require.NoError(t, err)

	records, err := ledger.ForArticle(context.Background(), "b/post.md")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, server.URL+"/a.png", records[0].SourceURL)
	require.Equal(t, "images/"+md5Hex(pngPayload)+".png", records[0].LocalPath)
}

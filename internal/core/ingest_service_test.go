package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jalalidin/knowledgevault/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestUser(t *testing.T, s *store.SQLiteStore, email string) *store.User {
	t.Helper()
	user, err := s.GetOrCreateUserByEmail(email, "Demo", "User")
	require.NoError(t, err)
	return user
}

func newIngestService(t *testing.T, s *store.SQLiteStore, gen Generator) *IngestService {
	t.Helper()
	svc, err := NewIngestService(s, gen, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestUploadFileEnrichmentFailureUsesDefaults(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "upload@example.com")
	gen := &stubGenerator{err: ErrAgentsUnavailable}
	svc := newIngestService(t, s, gen)

	item, err := svc.UploadFile(context.Background(), UploadParams{
		UserID:      user.ID,
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("some plain text notes"),
	})
	require.NoError(t, err, "enrichment failure must never fail the upload")

	assert.Equal(t, "notes.txt", item.Title)
	assert.Equal(t, "File uploaded successfully", item.Summary)
	assert.Equal(t, []string{"uploaded"}, item.Tags)
	assert.True(t, item.IsProcessed, "processing is done once a best-effort attempt was made")
	assert.Equal(t, "some plain text notes", item.Content)
	assert.Equal(t, int64(len("some plain text notes")), item.FileSize)

	written, err := os.ReadFile(item.ObjectPath)
	require.NoError(t, err)
	assert.Equal(t, "some plain text notes", string(written))
}

func TestUploadFileParsesAgentResponse(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "upload2@example.com")
	gen := &stubGenerator{
		available: true,
		response:  "Title: Quarterly Report\nSummary: Q3 revenue analysis\nTags: finance, reports",
	}
	svc := newIngestService(t, s, gen)

	item, err := svc.UploadFile(context.Background(), UploadParams{
		UserID:      user.ID,
		Filename:    "q3.txt",
		ContentType: "text/plain; charset=utf-8",
		Data:        []byte("revenue went up"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Quarterly Report", item.Title)
	assert.Equal(t, "Q3 revenue analysis", item.Summary)
	assert.ElementsMatch(t, []string{"finance", "reports"}, item.Tags)
	require.Len(t, gen.agents, 1)
	assert.Equal(t, DocumentProcessor.Name, gen.agents[0])
	assert.Contains(t, gen.prompts[0], "Filename: q3.txt")
	assert.Contains(t, gen.prompts[0], "revenue went up")

	// Round trip through the store keeps the tag set.
	got, err := s.GetKnowledgeItemByID(item.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.ElementsMatch(t, []string{"finance", "reports"}, got.Tags)
}

func TestUploadFileNonTextContentIsOpaque(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "upload3@example.com")
	gen := &stubGenerator{available: true, response: "Title: Slides"}
	svc := newIngestService(t, s, gen)

	item, err := svc.UploadFile(context.Background(), UploadParams{
		UserID:      user.ID,
		Filename:    "deck.pdf",
		ContentType: "application/pdf",
		Data:        []byte{0x25, 0x50, 0x44, 0x46},
	})
	require.NoError(t, err)

	assert.Empty(t, item.Content, "non-text uploads are not decoded for analysis")
	assert.Equal(t, "Slides", item.Title)
	assert.Equal(t, store.ItemTypeDocument, item.Type)
}

func TestUploadFilePreviewIsBounded(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "upload4@example.com")
	gen := &stubGenerator{available: true, response: "Title: Big"}
	svc := newIngestService(t, s, gen)

	big := make([]byte, 5000)
	for i := range big {
		big[i] = 'x'
	}
	_, err := svc.UploadFile(context.Background(), UploadParams{
		UserID:      user.ID,
		Filename:    "big.txt",
		ContentType: "text/plain",
		Data:        big,
	})
	require.NoError(t, err)
	require.Len(t, gen.prompts, 1)
	assert.Less(t, len(gen.prompts[0]), 1500, "prompt carries only a bounded preview of the content")
}

func TestCreateItemBackfillsMissingSummary(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "create@example.com")
	gen := &stubGenerator{available: true, response: "Summary: A concise overview"}
	svc := newIngestService(t, s, gen)

	item, err := svc.CreateItem(context.Background(), user.ID, CreateItemParams{
		Title:   "Overview",
		Content: "long form content here",
		Type:    store.ItemTypeText,
		Tags:    []string{"a", "b"},
	})
	require.NoError(t, err)

	assert.Equal(t, "A concise overview", item.Summary)
	assert.True(t, item.IsProcessed)
	assert.ElementsMatch(t, []string{"a", "b"}, item.Tags)
}

func TestCreateItemUserSummaryWins(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "create2@example.com")
	gen := &stubGenerator{available: true, response: "Summary: ignored suggestion"}
	svc := newIngestService(t, s, gen)

	item, err := svc.CreateItem(context.Background(), user.ID, CreateItemParams{
		Title:   "Overview",
		Summary: "my own summary",
		Content: "content",
		Type:    store.ItemTypeText,
	})
	require.NoError(t, err)

	assert.Equal(t, "my own summary", item.Summary)
	assert.Empty(t, gen.prompts, "enrichment is skipped when the user supplied a summary")
}

func TestCreateItemEnrichmentFailureIsNonFatal(t *testing.T) {
	s := newTestStore(t)
	user := newTestUser(t, s, "create3@example.com")
	gen := &stubGenerator{err: ErrAgentsUnavailable}
	svc := newIngestService(t, s, gen)

	item, err := svc.CreateItem(context.Background(), user.ID, CreateItemParams{
		Title:   "Plain",
		Content: "content without summary",
		Type:    store.ItemTypeText,
	})
	require.NoError(t, err)
	assert.Empty(t, item.Summary)
	assert.True(t, item.IsProcessed)
}

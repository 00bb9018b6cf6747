package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebtf/reflectra/pkg/models"
)

func TestSessionSummary(t *testing.T) {
	s := &models.Session{
		ID:           5,
		URL:          "https://docs.google.com/document/d/abc",
		Title:        "My Doc",
		Duration:     150_000,
		Timestamp:    1_700_000_000_000,
		CategoryName: models.CategoryFocusedWork,
	}
	want := "Browsing session\n" +
		"Title: My Doc\n" +
		"URL: https://docs.google.com/document/d/abc\n" +
		"DurationMinutes: 3\n" +
		"Category: Focused Work\n" +
		"Timestamp: 2023-11-14T22:13:20.000Z"
	assert.Equal(t, want, SessionSummary(s))
}

func TestSessionSummary_OmitsEmpty(t *testing.T) {
	got := SessionSummary(&models.Session{URL: "https://a.test", Duration: 20_000})
	assert.Equal(t, "Browsing session\nURL: https://a.test\nDurationMinutes: 0", got)
}

func TestSessionDocument(t *testing.T) {
	doc := SessionDocument(&models.Session{ID: 9, URL: "https://a.test", Timestamp: 10})
	assert.Equal(t, "session_9", doc.ID)
	assert.Equal(t, "Untitled session", doc.Metadata["title"])
	assert.Equal(t, models.CategoryUncategorized, doc.Metadata["category"])
	assert.Equal(t, DocTypeSession, doc.Metadata["doc_type"])
	assert.Equal(t, int64(9), doc.Metadata["session_id"])
}

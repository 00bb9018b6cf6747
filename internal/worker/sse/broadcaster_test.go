package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// BroadcasterSuite is a test suite for Broadcaster operations.
type BroadcasterSuite struct {
	suite.Suite
	broadcaster *Broadcaster
}

func (s *BroadcasterSuite) SetupTest() {
	s.broadcaster = NewBroadcaster()
}

func TestBroadcasterSuite(t *testing.T) {
	suite.Run(t, new(BroadcasterSuite))
}

// mockResponseWriter implements http.ResponseWriter and http.Flusher for testing.
type mockResponseWriter struct {
	header http.Header
	body   []byte
	mu     sync.Mutex
}

func newMockResponseWriter() *mockResponseWriter {
	return &mockResponseWriter{header: make(http.Header)}
}

func (m *mockResponseWriter) Header() http.Header { return m.header }

func (m *mockResponseWriter) Write(data []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = append(m.body, data...)
	return len(data), nil
}

func (m *mockResponseWriter) WriteHeader(int) {}

func (m *mockResponseWriter) Flush() {}

func (m *mockResponseWriter) GetBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.body)
}

func (s *BroadcasterSuite) TestAddRemoveClient() {
	client, err := s.broadcaster.AddClient(newMockResponseWriter())
	s.Require().NoError(err)
	s.NotEmpty(client.ID)
	s.Equal(1, s.broadcaster.ClientCount())

	s.broadcaster.RemoveClient(client)
	s.Equal(0, s.broadcaster.ClientCount())

	select {
	case <-client.Done:
	default:
		s.Fail("Done channel should be closed")
	}

	// Removing twice is harmless.
	s.broadcaster.RemoveClient(client)
}

func (s *BroadcasterSuite) TestPublish() {
	writers := make([]*mockResponseWriter, 3)
	for i := range writers {
		writers[i] = newMockResponseWriter()
		_, err := s.broadcaster.AddClient(writers[i])
		s.Require().NoError(err)
	}

	s.broadcaster.Publish(EventSessionMerged, map[string]int64{"id": 7})

	for i, w := range writers {
		body := w.GetBody()
		s.True(strings.HasPrefix(body, "data: "), "client %d", i)
		s.True(strings.HasSuffix(body, "\n\n"), "client %d", i)

		var ev Event
		s.Require().NoError(json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(body, "data: "))), &ev))
		s.Equal(EventSessionMerged, ev.Type)
		s.Positive(ev.Timestamp)
	}
}

func (s *BroadcasterSuite) TestBroadcastNoClients() {
	s.broadcaster.Publish(EventSessionRecorded, nil)
}

func TestClientUniqueIDs(t *testing.T) {
	b := NewBroadcaster()
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		client, err := b.AddClient(newMockResponseWriter())
		require.NoError(t, err)
		assert.False(t, ids[client.ID], "ID %s should be unique", client.ID)
		ids[client.ID] = true
	}
}

func TestConcurrentBroadcast(t *testing.T) {
	b := NewBroadcaster()
	for i := 0; i < 10; i++ {
		_, err := b.AddClient(newMockResponseWriter())
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish(EventSessionRecorded, map[string]int{"index": i})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, b.ClientCount())
}

func TestHandleSSE(t *testing.T) {
	b := NewBroadcaster()
	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"type":"connected"`)

	require.Eventually(t, func() bool { return b.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	b.Publish(EventSessionsReconciled, map[string]int{"merged": 2})

	// Skip the blank separator line.
	_, _ = reader.ReadString('\n')
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, EventSessionsReconciled)

	cancel()
	assert.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

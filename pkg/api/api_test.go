package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"modchat/pkg/api"
	"modchat/pkg/auth"
	"modchat/pkg/client"
	"modchat/pkg/models"
	"modchat/pkg/moderation"
	"modchat/pkg/store"
)

const (
	frontendKey = "test-frontend-key"
	backendKey  = "test-backend-key"
	adminKey    = "test-admin-key"
)

type testServer struct {
	*httptest.Server
	scan *moderation.ScanQueue
}

// setupServer builds the full stack: temp store, engine with a blocklist
// and lexicon scorer, one scan worker and the authenticated router.
func setupServer(t *testing.T) *testServer {
	t.Helper()
	require.NoError(t, store.Open(t.TempDir()))
	t.Cleanup(func() { _ = store.Close() })

	settings := moderation.DefaultSettings()
	settings.Blocklists = []moderation.Blocklist{{Name: "terms", Terms: []string{"forbidden phrase"}}}
	settings.MaliciousHosts = []string{"evil.example"}
	engine := moderation.NewEngine(settings, moderation.NewLexiconScorer())

	scan := moderation.NewScanQueue(64)
	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-workerDone
	})
	go func() {
		defer close(workerDone)
		scan.RunWorker(ctx, func(f *moderation.Flag) error {
			var item models.QueueItem
			if err := json.Unmarshal(f.Payload, &item); err != nil {
				return err
			}
			return store.SaveQueueItem(item)
		})
	}()

	secCfg := auth.SecConfig{
		RPS:          1000,
		Burst:        1000,
		FrontendKeys: map[string]struct{}{frontendKey: {}},
		BackendKeys:  map[string]struct{}{backendKey: {}},
		AdminKeys:    map[string]struct{}{adminKey: {}},
	}
	var h http.Handler = api.NewRouter(api.NewEnv(engine, scan))
	h = auth.RequireSignedAuthor(secCfg)(h)
	h = auth.Authenticate(secCfg)(h)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, scan: scan}
}

func userClient(srv *testServer, user string) *client.Client {
	return client.New(srv.URL, frontendKey, client.WithSignedAuthor(user, backendKey))
}

func adminClient(srv *testServer, user string) *client.Client {
	return client.New(srv.URL, adminKey, client.WithSignedAuthor(user, backendKey))
}

func waitForQueue(t *testing.T, c *client.Client, want int) []models.QueueItem {
	t.Helper()
	var items []models.QueueItem
	require.Eventually(t, func() bool {
		var err error
		items, err = c.GetQueue(context.Background(), models.StatusPending)
		return err == nil && len(items) == want
	}, 2*time.Second, 10*time.Millisecond)
	return items
}

func TestSendAndListMessages(t *testing.T) {
	srv := setupServer(t)
	c := userClient(srv, "alice")

	m1, err := c.SendMessage(context.Background(), "general", "hello there", "")
	require.NoError(t, err)
	require.NotEmpty(t, m1.ID)
	require.Equal(t, "alice", m1.Author)

	m2, err := c.SendMessage(context.Background(), "general", "a reply", m1.ID)
	require.NoError(t, err)
	require.Equal(t, m1.ID, m2.ReplyTo)

	msgs, err := c.ListMessages(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, m1.ID, msgs[0].ID)
}

func TestSendRejectedByBlocklist(t *testing.T) {
	srv := setupServer(t)
	c := userClient(srv, "alice")

	_, err := c.SendMessage(context.Background(), "general", "this is a forbidden phrase here", "")
	var rej *moderation.RejectionError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, moderation.ReasonKeywordMatch, rej.Reason)

	msgs, err := c.ListMessages(context.Background(), "general")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestSendRejectedByMaliciousLink(t *testing.T) {
	srv := setupServer(t)
	c := userClient(srv, "alice")

	_, err := c.SendMessage(context.Background(), "general", "visit https://evil.example/deal now", "")
	var rej *moderation.RejectionError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, moderation.ReasonMaliciousLink, rej.Reason)
}

func TestFlaggedMessageAcceptedAndQueued(t *testing.T) {
	srv := setupServer(t)
	c := userClient(srv, "alice")

	// harassment severity 4: above the flag threshold, below rejection
	m, err := c.SendMessage(context.Background(), "general", "I hate you so much", "")
	require.NoError(t, err)

	mod := adminClient(srv, "mod-1")
	items := waitForQueue(t, mod, 1)
	require.Equal(t, m.ID, items[0].SourceID)
	require.Equal(t, "I hate you so much", items[0].Content)
	require.Equal(t, models.StatusPending, items[0].Status)
	require.NotEmpty(t, items[0].Categories)
}

func TestModerationQueueForbiddenForFrontend(t *testing.T) {
	srv := setupServer(t)
	c := userClient(srv, "alice")
	_, err := c.GetQueue(context.Background(), models.StatusPending)
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestReviewLifecycleAndDoubleReviewConflict(t *testing.T) {
	srv := setupServer(t)
	user := userClient(srv, "alice")
	mod := adminClient(srv, "mod-1")

	_, err := user.SendMessage(context.Background(), "general", "I hate you", "")
	require.NoError(t, err)
	items := waitForQueue(t, mod, 1)

	require.NoError(t, mod.ReviewItem(context.Background(), items[0].ID, models.DecisionRejected, "clear harassment"))

	got, err := mod.GetQueue(context.Background(), models.StatusRejected)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "mod-1", got[0].ReviewedBy)
	require.Equal(t, "clear harassment", got[0].Notes)
	require.NotZero(t, got[0].ReviewedTS)

	// a second decision on a terminal item is a conflict, not a no-op
	err = mod.ReviewItem(context.Background(), items[0].ID, models.DecisionApproved, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "409")
}

func TestToggleLikeRoundTrip(t *testing.T) {
	srv := setupServer(t)
	alice := userClient(srv, "alice")
	bob := userClient(srv, "bob")

	m, err := alice.SendMessage(context.Background(), "general", "like me", "")
	require.NoError(t, err)

	st, err := bob.ToggleLike(context.Background(), "general", m.ID)
	require.NoError(t, err)
	require.True(t, st.Liked)
	require.Equal(t, 1, st.LikeCount)

	st, err = alice.ToggleLike(context.Background(), "general", m.ID)
	require.NoError(t, err)
	require.Equal(t, 2, st.LikeCount)

	st, err = bob.ToggleLike(context.Background(), "general", m.ID)
	require.NoError(t, err)
	require.False(t, st.Liked)
	require.Equal(t, 1, st.LikeCount)
}

func TestDeleteOwnMessageLeavesPlaceholder(t *testing.T) {
	srv := setupServer(t)
	alice := userClient(srv, "alice")
	bob := userClient(srv, "bob")

	m, err := alice.SendMessage(context.Background(), "general", "ephemeral", "")
	require.NoError(t, err)

	// another user may not delete it
	err = bob.DeleteMessage(context.Background(), "general", m.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")

	require.NoError(t, alice.DeleteMessage(context.Background(), "general", m.ID))

	msgs, err := alice.ListMessages(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Deleted)
	require.Equal(t, models.DeletedPlaceholder, msgs[0].Body)

	// liking a deleted message conflicts
	_, err = bob.ToggleLike(context.Background(), "general", m.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "409")
}

func TestReportMessageEntersQueue(t *testing.T) {
	srv := setupServer(t)
	alice := userClient(srv, "alice")
	bob := userClient(srv, "bob")
	mod := adminClient(srv, "mod-1")

	m, err := alice.SendMessage(context.Background(), "general", "perfectly fine text", "")
	require.NoError(t, err)

	require.NoError(t, bob.ReportMessage(context.Background(), "general", m.ID, "seems off"))
	items := waitForQueue(t, mod, 1)
	require.Equal(t, m.ID, items[0].SourceID)
}

func TestModerationSettingsRoundTrip(t *testing.T) {
	srv := setupServer(t)
	mod := adminClient(srv, "mod-1")
	user := userClient(srv, "alice")

	s, err := mod.GetModerationSettings(context.Background())
	require.NoError(t, err)
	s.Blocklists = append(s.Blocklists, moderation.Blocklist{Name: "extra", Terms: []string{"zanzibar"}})
	require.NoError(t, mod.PutModerationSettings(context.Background(), s))

	// the engine picks the new list up immediately
	_, err = user.SendMessage(context.Background(), "general", "all about zanzibar", "")
	var rej *moderation.RejectionError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, moderation.ReasonKeywordMatch, rej.Reason)
}

func TestAuthRequired(t *testing.T) {
	srv := setupServer(t)

	res, err := http.Get(srv.URL + "/v1/threads")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// a frontend key without signed author headers cannot post
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/threads/general/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+frontendKey)
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestReplyTargetMustBeInThread(t *testing.T) {
	srv := setupServer(t)
	alice := userClient(srv, "alice")

	m, err := alice.SendMessage(context.Background(), "general", "root", "")
	require.NoError(t, err)

	_, err = alice.SendMessage(context.Background(), "other-thread", "cross reply", m.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")
}

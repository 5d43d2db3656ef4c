package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/vibemusic/services"
)

type staticCounts struct {
	counts map[services.ContentKind]int64
	err    error
}

func (s staticCounts) PendingCounts(context.Context) (map[services.ContentKind]int64, error) {
	return s.counts, s.err
}

type mail struct{ to, subject, body string }

type captureMailer struct {
	sent   []mail
	failTo string
}

func (m *captureMailer) Send(to, subject, body string) error {
	if to == m.failTo {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, mail{to, subject, body})
	return nil
}

type tagRecorder struct{ tags []string }

func (r *tagRecorder) InvalidateTag(_ context.Context, tag string) error {
	r.tags = append(r.tags, tag)
	return nil
}

func TestSendDigest(t *testing.T) {
	counts := staticCounts{counts: map[services.ContentKind]int64{
		services.KindSong: 2, services.KindPost: 1, services.KindReply: 0, services.KindComment: 4,
	}}
	m := &captureMailer{}
	s := New(Config{AdminEmails: []string{"a@vibe.local", "b@vibe.local"}}, counts, nil, m, nil)

	require.NoError(t, s.SendDigest(context.Background()))
	require.Len(t, m.sent, 2)
	assert.Equal(t, "Vibe Music: 7 items awaiting moderation", m.sent[0].subject)
	assert.Contains(t, m.sent[0].body, "song     2")
	assert.Contains(t, m.sent[0].body, "comment  4")
	assert.Less(t, strings.Index(m.sent[0].body, "comment"), strings.Index(m.sent[0].body, "song"), "kinds are sorted")
}

func TestSendDigest_Skips(t *testing.T) {
	m := &captureMailer{}
	empty := staticCounts{counts: map[services.ContentKind]int64{services.KindSong: 0}}

	require.NoError(t, New(Config{AdminEmails: []string{"a@vibe.local"}}, empty, nil, m, nil).SendDigest(context.Background()))
	require.NoError(t, New(Config{}, staticCounts{err: errors.New("unused")}, nil, m, nil).SendDigest(context.Background()))
	require.NoError(t, New(Config{AdminEmails: []string{"a@vibe.local"}}, empty, nil, nil, nil).SendDigest(context.Background()))
	assert.Empty(t, m.sent)
}

func TestSendDigest_Errors(t *testing.T) {
	m := &captureMailer{failTo: "bad@vibe.local"}
	counts := staticCounts{counts: map[services.ContentKind]int64{services.KindPost: 1}}
	s := New(Config{AdminEmails: []string{"bad@vibe.local", "good@vibe.local"}}, counts, nil, m, nil)

	err := s.SendDigest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad@vibe.local")
	require.Len(t, m.sent, 1, "one failing recipient does not stop the others")

	failing := New(Config{AdminEmails: []string{"a@vibe.local"}}, staticCounts{err: errors.New("db down")}, nil, m, nil)
	assert.ErrorContains(t, failing.SendDigest(context.Background()), "db down")
}

func TestFlushRecommendations(t *testing.T) {
	rec := &tagRecorder{}
	s := New(Config{}, nil, rec, nil, nil)
	require.NoError(t, s.FlushRecommendations(context.Background()))
	assert.Equal(t, []string{services.TagRecommend}, rec.tags)

	assert.NoError(t, New(Config{}, nil, nil, nil, nil).FlushRecommendations(context.Background()))
}

func TestStart_RejectsBadSpec(t *testing.T) {
	s := New(Config{DigestSpec: "not a spec", RecommendFlushSpec: "@every 1h"}, nil, nil, nil, nil)
	assert.Error(t, s.Start())
}

func TestStartStop(t *testing.T) {
	s := New(Config{DigestSpec: "0 9 * * *", RecommendFlushSpec: "@every 6h"}, staticCounts{}, &tagRecorder{}, nil, nil)
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}

func TestWrapRunsJob(t *testing.T) {
	s := New(Config{}, nil, nil, nil, nil)
	ran := false
	s.wrap("test_job", func(ctx context.Context) error {
		ran = true
		_, ok := ctx.Deadline()
		assert.True(t, ok, "jobs run with a timeout")
		return errors.New("boom")
	})()
	assert.True(t, ran)
}

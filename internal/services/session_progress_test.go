package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/shakescript/internal/models"
	"github.com/Corphon/shakescript/internal/ui"
)

func TestSessionService_Resolve(t *testing.T) {
	sessions := NewSessionService(time.Hour)

	sess, created := sessions.Resolve("")
	require.True(t, created)
	assert.NotEmpty(t, sess.ID)

	again, created := sessions.Resolve(sess.ID)
	assert.False(t, created)
	assert.Same(t, sess, again)

	other, created := sessions.Resolve("unknown-id")
	assert.True(t, created)
	assert.NotEqual(t, "unknown-id", other.ID)
	assert.Equal(t, 2, sessions.Count())
}

func TestSessionService_Expiry(t *testing.T) {
	sessions := NewSessionService(50 * time.Millisecond)
	sess, _ := sessions.Resolve("")

	time.Sleep(80 * time.Millisecond)
	_, ok := sessions.Get(sess.ID)
	assert.False(t, ok)
}

func TestSession_DefaultForm(t *testing.T) {
	sessions := NewSessionService(time.Hour)
	sess, _ := sessions.Resolve("")

	snap := sess.Snapshot()
	assert.Equal(t, *ui.NewPromptForm(), snap.Form)
	assert.True(t, snap.CanSubmit, "the stored form is not what the visitor typed")
	assert.Nil(t, snap.Current)

	sess.StepForm("episodes+")
	assert.Equal(t, 6, sess.Form().EpisodeCount)
}

func TestSession_CanSubmitFalseWhileGenerating(t *testing.T) {
	sessions := NewSessionService(time.Hour)
	sess, _ := sessions.Resolve("")
	sess.UpdateForm(ui.PromptForm{Prompt: "X", EpisodeCount: 5, BatchSize: 5, RefineMethod: models.RefineAI})
	assert.True(t, sess.Snapshot().CanSubmit)

	require.True(t, sess.BeginGeneration())
	assert.False(t, sess.BeginGeneration())
	assert.False(t, sess.Snapshot().CanSubmit)

	sess.FinishGeneration(nil)
	assert.True(t, sess.Snapshot().CanSubmit)
}

func TestSession_LibraryPaginatorResetsOnNewStory(t *testing.T) {
	sessions := NewSessionService(time.Hour)
	sess, _ := sessions.Resolve("")

	knight := &models.StoryView{StoryID: 42, Title: "The Knight", Episodes: threeEpisodes()}
	sess.OpenLibraryStory(knight, false)
	require.True(t, StepPaginator(sess.LibraryPager(), "next", 0))
	assert.Equal(t, 1, sess.LibraryPager().Current())

	// reopening the same story keeps the position
	sess.OpenLibraryStory(knight, false)
	assert.Equal(t, 1, sess.LibraryPager().Current())

	// unless the reader starts over
	sess.OpenLibraryStory(knight, true)
	assert.Equal(t, 0, sess.LibraryPager().Current())

	other := &models.StoryView{StoryID: 7, Title: "Tides", Episodes: threeEpisodes()[:2]}
	sess.OpenLibraryStory(other, false)
	assert.Equal(t, 0, sess.LibraryPager().Current())
	assert.Equal(t, 7, sess.LibraryStoryID())

	snap := sess.Snapshot()
	require.NotNil(t, snap.LibraryEpisode)
	assert.Equal(t, "Oath", snap.LibraryEpisode.Title)
	assert.Equal(t, ui.Position{Index: 0, Number: 1, Total: 2}, snap.LibraryPosition)

	sess.CloseLibraryStory()
	assert.Equal(t, 0, sess.LibraryStoryID())
}

func TestStepPaginator(t *testing.T) {
	p := ui.NewPaginator(3)
	assert.True(t, StepPaginator(p, "prev", 0))
	assert.Equal(t, 2, p.Current())
	assert.True(t, StepPaginator(p, "jump", 1))
	assert.Equal(t, 1, p.Current())
	assert.False(t, StepPaginator(p, "jump", 3))
	assert.False(t, StepPaginator(p, "sideways", 0))

	single := ui.NewPaginator(1)
	assert.False(t, StepPaginator(single, "next", 0))
	assert.False(t, StepPaginator(single, "prev", 0))
	assert.Equal(t, 0, single.Current())
}

func TestProgressTracker_SubscribeAndUnsubscribe(t *testing.T) {
	progress := NewProgressService()
	tracker := progress.Tracker("s1")
	assert.Same(t, tracker, progress.Tracker("s1"))

	sub := tracker.Subscribe()
	assert.Equal(t, StatusIdle, (<-sub).Status)

	tracker.Start("go")
	tracker.UpdateProgress(50, "half", 3)
	tracker.UpdateProgress(20, "", 0)

	assert.Equal(t, StatusGenerating, (<-sub).Status)
	half := <-sub
	assert.Equal(t, 50, half.Progress)
	assert.Equal(t, 3, half.StoryID)
	assert.Equal(t, 50, (<-sub).Progress, "progress never goes backwards")

	tracker.Fail("boom")
	assert.Equal(t, StatusFailed, (<-sub).Status)

	tracker.Unsubscribe(sub)
	_, open := <-sub
	assert.False(t, open)
	assert.NotPanics(t, func() { tracker.Unsubscribe(sub) })
}

func TestProgressTracker_SlowSubscriberDoesNotBlock(t *testing.T) {
	tracker := NewProgressService().Tracker("s1")
	sub := tracker.Subscribe()
	defer tracker.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tracker.UpdateProgress(i, "", 0)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}

func TestProgressService_Cleanup(t *testing.T) {
	progress := NewProgressService()
	progress.Tracker("done").Complete("ok", 1)
	progress.Tracker("running").Start("go")
	watched := progress.Tracker("watched")
	sub := watched.Subscribe()
	defer watched.Unsubscribe(sub)

	time.Sleep(5 * time.Millisecond)
	removed := progress.CleanupCompletedTasks(time.Millisecond)

	assert.Equal(t, 1, removed)
	_, ok := progress.GetTracker("done")
	assert.False(t, ok)
	assert.Equal(t, 2, progress.Len())
}

func TestProgressService_RunCleanupStops(t *testing.T) {
	progress := NewProgressService()
	progress.Tracker("old").Complete("ok", 0)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		progress.RunCleanup(ctx, 5*time.Millisecond, time.Millisecond)
		close(finished)
	}()

	assert.Eventually(t, func() bool { return progress.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-finished
}

func TestProgressService_EmptyTaskIDIsPrivate(t *testing.T) {
	progress := NewProgressService()
	progress.Tracker("").Start("x")
	assert.Equal(t, 0, progress.Len())

	var nilService *ProgressService
	assert.NotPanics(t, func() { nilService.Tracker("s").Start("x") })
}

package queue

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/Kanade/pkg/lavalink"
)

func makeTrack(title string) *lavalink.Track {
	return lavalink.NewTrack("token:"+title, lavalink.TrackInfo{
		Source: lavalink.TrackTypeYouTube,
		Title:  title,
		Author: "tester",
		Length: 180_000,
	})
}

func makeTracks(n int) []*lavalink.Track {
	tracks := make([]*lavalink.Track, n)
	for i := range tracks {
		tracks[i] = makeTrack(fmt.Sprintf("track-%d", i))
	}
	return tracks
}

func TestFIFOOrder(t *testing.T) {
	q := New()
	tracks := makeTracks(5)
	for _, track := range tracks {
		require.NoError(t, q.Put(track))
	}

	for i, want := range tracks {
		got, err := q.Get()
		require.NoError(t, err)
		assert.Same(t, want, got, "dequeue %d out of order", i)
	}

	_, err := q.Get()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestOverflowDropOldest(t *testing.T) {
	q := New(WithMaxSize(3), WithOverflowPolicy(DropOldest))
	tracks := makeTracks(5)
	for _, track := range tracks {
		require.NoError(t, q.Put(track))
	}

	assert.Equal(t, 3, q.Size())

	// The two oldest tracks were evicted.
	got, err := q.Get()
	require.NoError(t, err)
	assert.Same(t, tracks[2], got)
}

func TestOverflowReject(t *testing.T) {
	q := New(WithMaxSize(2), WithOverflowPolicy(Reject))
	require.NoError(t, q.Put(makeTrack("a")))
	require.NoError(t, q.Put(makeTrack("b")))

	err := q.Put(makeTrack("c"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Size())
}

func TestLoopTrackRepeats(t *testing.T) {
	q := New()
	track := makeTrack("solo")
	require.NoError(t, q.Put(track))
	q.SetLoopMode(LoopTrack)

	for i := 0; i < 100; i++ {
		got, err := q.Get()
		require.NoError(t, err)
		assert.Same(t, track, got)
	}
	assert.Equal(t, 1, q.Size(), "track loop must not consume the queue")
}

func TestLoopQueueWrapsAround(t *testing.T) {
	q := New()
	a, b, c := makeTrack("a"), makeTrack("b"), makeTrack("c")
	require.NoError(t, q.Extend(a, b, c))

	// Consume A in FIFO mode so the cursor sits on it, then loop.
	first, err := q.Get()
	require.NoError(t, err)
	require.Same(t, a, first)

	q.SetLoopMode(LoopQueue)
	require.Equal(t, 3, q.Size(), "entering queue loop re-seats the cursor track")

	want := []*lavalink.Track{b, c, a, b, c, a}
	for i, expected := range want {
		got, err := q.Get()
		require.NoError(t, err)
		assert.Same(t, expected, got, "loop step %d", i)
		assert.Equal(t, 3, q.Size(), "queue loop must not consume the queue")
	}
}

func TestLoopQueueWithoutCursorStartsAtHead(t *testing.T) {
	q := New()
	a, b := makeTrack("a"), makeTrack("b")
	require.NoError(t, q.Extend(a, b))
	q.SetLoopMode(LoopQueue)

	got, err := q.Get()
	require.NoError(t, err)
	assert.Same(t, a, got)
}

// Leaving queue-loop mode intentionally drops everything at or before the
// cursor. This loses data on purpose: those tracks already played in the
// current loop pass.
func TestDisableLoopTruncates(t *testing.T) {
	q := New()
	tracks := makeTracks(4)
	require.NoError(t, q.Extend(tracks...))
	q.SetLoopMode(LoopQueue)

	// Walk the cursor onto tracks[1].
	for i := 0; i < 2; i++ {
		_, err := q.Get()
		require.NoError(t, err)
	}

	q.DisableLoop()

	remaining := q.Tracks()
	require.Len(t, remaining, 2)
	assert.Same(t, tracks[2], remaining[0])
	assert.Same(t, tracks[3], remaining[1])
}

func TestJump(t *testing.T) {
	q := New()
	tracks := makeTracks(5)
	require.NoError(t, q.Extend(tracks...))

	require.NoError(t, q.Jump(tracks[3]))

	got, err := q.Get()
	require.NoError(t, err)
	assert.Same(t, tracks[3], got)
	assert.Equal(t, 1, q.Size())
}

func TestJumpWhileTrackLoopFails(t *testing.T) {
	q := New()
	tracks := makeTracks(3)
	require.NoError(t, q.Extend(tracks...))
	q.SetLoopMode(LoopTrack)

	err := q.Jump(tracks[2])
	assert.ErrorIs(t, err, ErrJumpWhileTrackLoop)
	assert.Equal(t, 3, q.Size())
}

func TestJumpUnknownTrack(t *testing.T) {
	q := New()
	require.NoError(t, q.Put(makeTrack("a")))

	err := q.Jump(makeTrack("stranger"))
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestPutAtFront(t *testing.T) {
	q := New()
	a, b, urgent := makeTrack("a"), makeTrack("b"), makeTrack("urgent")
	require.NoError(t, q.Extend(a, b))
	require.NoError(t, q.PutAtFront(urgent))

	got, err := q.Get()
	require.NoError(t, err)
	assert.Same(t, urgent, got)
}

func TestPutAtIndexClamps(t *testing.T) {
	q := New()
	a, b := makeTrack("a"), makeTrack("b")
	require.NoError(t, q.Extend(a, b))

	end := makeTrack("end")
	require.NoError(t, q.PutAtIndex(99, end))

	tracks := q.Tracks()
	require.Len(t, tracks, 3)
	assert.Same(t, end, tracks[2])
}

func TestExtendRejectIsAtomic(t *testing.T) {
	q := New(WithMaxSize(3), WithOverflowPolicy(Reject))
	require.NoError(t, q.Put(makeTrack("existing")))

	err := q.Extend(makeTracks(3)...)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, q.Size(), "rejected extend must not partially apply")
}

func TestRemoveAndFindPosition(t *testing.T) {
	q := New()
	tracks := makeTracks(3)
	require.NoError(t, q.Extend(tracks...))

	pos, err := q.FindPosition(tracks[1])
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	require.NoError(t, q.Remove(tracks[1]))
	assert.Equal(t, 2, q.Size())

	_, err = q.FindPosition(tracks[1])
	assert.ErrorIs(t, err, ErrTrackNotFound)

	err = q.Remove(tracks[1])
	assert.ErrorIs(t, err, ErrTrackNotFound)
}

func TestShufflePreservesMembership(t *testing.T) {
	q := New()
	tracks := makeTracks(10)
	require.NoError(t, q.Extend(tracks...))

	q.Shuffle()

	shuffled := q.Tracks()
	require.Len(t, shuffled, len(tracks))
	seen := make(map[*lavalink.Track]bool, len(shuffled))
	for _, track := range shuffled {
		seen[track] = true
	}
	for _, track := range tracks {
		assert.True(t, seen[track], "shuffle lost track %s", track.Info.Title)
	}
}

func TestClear(t *testing.T) {
	q := New()
	require.NoError(t, q.Extend(makeTracks(3)...))
	q.SetLoopMode(LoopQueue)
	_, err := q.Get()
	require.NoError(t, err)

	q.Clear()
	assert.True(t, q.IsEmpty())

	_, err = q.Get()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestReenteringQueueLoopReseedsConsumedCursor(t *testing.T) {
	q := New()
	a, b, c := makeTrack("a"), makeTrack("b"), makeTrack("c")
	require.NoError(t, q.Extend(a, b, c))

	// Consume A in FIFO mode; it is gone from the queue but remembered
	// as the cursor.
	first, err := q.Get()
	require.NoError(t, err)
	require.Same(t, a, first)
	require.Equal(t, 2, q.Size())

	q.SetLoopMode(LoopQueue)

	tracks := q.Tracks()
	require.Len(t, tracks, 3)
	assert.Same(t, a, tracks[0], "cursor track is re-seated at its last known index")
}

// Package queue implements the ordered holding area a guild's playback
// loop draws tracks from, with single-track and whole-queue repeat modes.
package queue

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/latoulicious/Kanade/pkg/lavalink"
)

var (
	// ErrQueueFull is returned by inserts when the queue is at capacity
	// and the overflow policy is Reject.
	ErrQueueFull = errors.New("queue: queue is full")

	// ErrQueueEmpty is returned by Get when there is nothing to return.
	ErrQueueEmpty = errors.New("queue: queue is empty")

	// ErrTrackNotFound is returned when an operation names a track that
	// is not in the queue.
	ErrTrackNotFound = errors.New("queue: track not in queue")

	// ErrJumpWhileTrackLoop is returned by Jump while single-track repeat
	// is active, since jumping would silently change the looped track.
	ErrJumpWhileTrackLoop = errors.New("queue: cannot jump while looping a single track")
)

// LoopMode is the queue's replay policy.
type LoopMode int

const (
	// LoopNone plays each track once, in FIFO order.
	LoopNone LoopMode = iota
	// LoopTrack repeats the current track indefinitely.
	LoopTrack
	// LoopQueue cycles through the whole queue without consuming it.
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}

// OverflowPolicy decides what an insert does when the queue is at capacity.
type OverflowPolicy int

const (
	// DropOldest silently evicts the head to make room.
	DropOldest OverflowPolicy = iota
	// Reject refuses the insert with ErrQueueFull.
	Reject
)

// Queue is an ordered, bounded track sequence. All methods are safe for
// concurrent use.
//
// The cursor is the last track handed out by Get. It only steers behavior
// in the loop modes: LoopTrack returns it verbatim, LoopQueue returns the
// track after it, wrapping past the end. Leaving LoopQueue truncates the
// queue to the tracks after the cursor; everything at or before it has
// already played in this loop pass.
type Queue struct {
	mu    sync.Mutex
	items []*lavalink.Track

	maxSize  int // 0 means unbounded
	overflow OverflowPolicy

	loop        LoopMode
	cursor      *lavalink.Track
	cursorIndex int
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxSize caps the queue at n tracks. Zero or negative means unbounded.
func WithMaxSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxSize = n
		}
	}
}

// WithOverflowPolicy sets what happens when an insert hits the cap.
func WithOverflowPolicy(p OverflowPolicy) Option {
	return func(q *Queue) {
		q.overflow = p
	}
}

// New builds an empty queue. The default is unbounded with DropOldest.
func New(opts ...Option) *Queue {
	q := &Queue{}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Put appends a track. At capacity, DropOldest evicts the head first and
// Reject returns ErrQueueFull.
func (q *Queue) Put(track *lavalink.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.makeRoomLocked(); err != nil {
		return err
	}
	q.items = append(q.items, track)
	return nil
}

// PutAtFront inserts a track at the head, ahead of everything queued.
func (q *Queue) PutAtFront(track *lavalink.Track) error {
	return q.PutAtIndex(0, track)
}

// PutAtIndex inserts a track at the given position, clamped to the queue
// bounds.
func (q *Queue) PutAtIndex(index int, track *lavalink.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.makeRoomLocked(); err != nil {
		return err
	}

	if index < 0 {
		index = 0
	}
	if index > len(q.items) {
		index = len(q.items)
	}

	q.items = append(q.items, nil)
	copy(q.items[index+1:], q.items[index:])
	q.items[index] = track
	return nil
}

// Extend appends tracks atomically: with a Reject policy, either every
// track fits or none is added.
func (q *Queue) Extend(tracks ...*lavalink.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && q.overflow == Reject && len(q.items)+len(tracks) > q.maxSize {
		return ErrQueueFull
	}

	for _, track := range tracks {
		if err := q.makeRoomLocked(); err != nil {
			return err
		}
		q.items = append(q.items, track)
	}
	return nil
}

// makeRoomLocked enforces the capacity for one incoming track.
func (q *Queue) makeRoomLocked() error {
	if q.maxSize <= 0 || len(q.items) < q.maxSize {
		return nil
	}
	if q.overflow == Reject {
		return ErrQueueFull
	}
	q.items = q.items[1:]
	return nil
}

// Get returns the next track per the loop mode. LoopNone pops the head,
// LoopTrack repeats the cursor, LoopQueue walks the queue in place wrapping
// past the end. Returns ErrQueueEmpty when there is nothing to play.
func (q *Queue) Get() (*lavalink.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, ErrQueueEmpty
	}

	switch q.loop {
	case LoopTrack:
		if q.cursor == nil {
			q.setCursorLocked(0)
		}
		return q.cursor, nil

	case LoopQueue:
		next := 0
		if idx := q.indexOfLocked(q.cursor); idx >= 0 {
			next = (idx + 1) % len(q.items)
		}
		q.setCursorLocked(next)
		return q.cursor, nil

	default:
		track := q.items[0]
		q.items = q.items[1:]
		q.cursor = track
		q.cursorIndex = 0
		return track, nil
	}
}

func (q *Queue) setCursorLocked(index int) {
	q.cursor = q.items[index]
	q.cursorIndex = index
}

func (q *Queue) indexOfLocked(track *lavalink.Track) int {
	if track == nil {
		return -1
	}
	for i, t := range q.items {
		if t == track {
			return i
		}
	}
	return -1
}

// LoopMode returns the active replay policy.
func (q *Queue) LoopMode() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loop
}

// SetLoopMode switches the replay policy. Entering LoopQueue seeds the
// cursor from the last track handed out, re-inserting it at its last known
// index if it was already consumed. Leaving LoopQueue drops everything at
// or before the cursor: those tracks already played in this loop pass, and
// this is deliberately destructive.
func (q *Queue) SetLoopMode(mode LoopMode) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if mode == q.loop {
		return
	}

	if q.loop == LoopQueue {
		q.truncatePastCursorLocked()
	}

	if mode == LoopQueue && q.cursor != nil && q.indexOfLocked(q.cursor) < 0 {
		index := q.cursorIndex
		if index > len(q.items) {
			index = len(q.items)
		}
		q.items = append(q.items, nil)
		copy(q.items[index+1:], q.items[index:])
		q.items[index] = q.cursor
		q.cursorIndex = index
	}

	q.loop = mode
}

// DisableLoop switches back to plain FIFO playback.
func (q *Queue) DisableLoop() {
	q.SetLoopMode(LoopNone)
}

func (q *Queue) truncatePastCursorLocked() {
	idx := q.indexOfLocked(q.cursor)
	if idx < 0 {
		return
	}
	remaining := make([]*lavalink.Track, len(q.items)-idx-1)
	copy(remaining, q.items[idx+1:])
	q.items = remaining
}

// Shuffle randomizes the order of the queued tracks.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Jump truncates the queue so it starts at the given track. Refused while
// single-track repeat is active.
func (q *Queue) Jump(track *lavalink.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop == LoopTrack {
		return ErrJumpWhileTrackLoop
	}

	idx := q.indexOfLocked(track)
	if idx < 0 {
		return ErrTrackNotFound
	}

	remaining := make([]*lavalink.Track, len(q.items)-idx)
	copy(remaining, q.items[idx:])
	q.items = remaining
	return nil
}

// Remove deletes the first occurrence of the track.
func (q *Queue) Remove(track *lavalink.Track) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOfLocked(track)
	if idx < 0 {
		return ErrTrackNotFound
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	return nil
}

// FindPosition returns the zero-based position of the track.
func (q *Queue) FindPosition(track *lavalink.Track) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexOfLocked(track)
	if idx < 0 {
		return 0, ErrTrackNotFound
	}
	return idx, nil
}

// Clear removes every track and forgets the cursor.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.cursor = nil
	q.cursorIndex = 0
}

// Size returns the number of queued tracks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether the queue has no tracks.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// IsFull reports whether the queue is at its capacity.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxSize > 0 && len(q.items) >= q.maxSize
}

// Tracks returns a snapshot of the queued tracks in order.
func (q *Queue) Tracks() []*lavalink.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*lavalink.Track, len(q.items))
	copy(out, q.items)
	return out
}

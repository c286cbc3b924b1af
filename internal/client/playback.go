package client

import (
	"time"

	"github.com/voxbridge/voxbridge/internal/audiocodec"
	"github.com/voxbridge/voxbridge/internal/upstream"
)

// PlaybackSampleRate is the fixed rate of upstream audio. Changing it breaks
// wire compatibility with the relay.
const PlaybackSampleRate = upstream.OutputSampleRate

// Player is the output device abstraction. Now reports the position of the
// output clock; PlayAt schedules a PCM16 mono buffer to begin at the given
// clock time and invokes done once on natural completion.
type Player interface {
	Now() time.Duration
	PlayAt(pcm []byte, startAt time.Duration, done func())
}

type scheduledBuffer struct {
	startAt  time.Duration
	duration time.Duration
}

// Scheduler lays arriving audio chunks back to back on the output timeline.
// Chunks arrive at irregular network intervals; scheduling each one at
// max(nextStartTime, now) keeps playback gapless and strictly sequential.
// The schedule never rewinds, so a late chunk adds latency, not overlap.
type Scheduler struct {
	player        Player
	queue         []scheduledBuffer
	nextStartTime time.Duration
}

func NewScheduler(p Player) *Scheduler {
	return &Scheduler{player: p}
}

// Schedule queues one decoded PCM chunk and returns its start time.
func (s *Scheduler) Schedule(pcm []byte, done func()) time.Duration {
	startAt := s.player.Now()
	if s.nextStartTime > startAt {
		startAt = s.nextStartTime
	}
	d := audiocodec.Duration(len(pcm), PlaybackSampleRate)
	s.player.PlayAt(pcm, startAt, done)
	s.queue = append(s.queue, scheduledBuffer{startAt: startAt, duration: d})
	s.nextStartTime = startAt + d
	return startAt
}

// BufferDone removes the oldest buffer after its playback completes and
// reports whether the queue is now empty, which ends the speaking turn.
func (s *Scheduler) BufferDone() bool {
	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}
	return len(s.queue) == 0
}

// Pending reports how many buffers are queued or playing.
func (s *Scheduler) Pending() int { return len(s.queue) }

package remote

import (
	"errors"
	"time"

	"github.com/robotalks/touchremote/pkg/remote/msgs"
)

// ErrNoWinner indicates the winner variable is empty.
var ErrNoWinner = errors.New("no winner selected")

// Outbound is an encoded message ready to publish.
type Outbound struct {
	Topic   string
	Payload []byte
}

// Builder builds outbound messages. Timestamps are milliseconds
// since Start.
type Builder struct {
	Topics   Topics
	DeviceID string
	Start    time.Time
}

// Millis returns the timestamp of now.
func (b *Builder) Millis(now time.Time) int64 {
	return now.Sub(b.Start).Milliseconds()
}

func (b *Builder) encode(topic string, msg interface{}) (*Outbound, error) {
	payload, err := msgs.Encode(msg)
	if err != nil {
		return nil, err
	}
	return &Outbound{Topic: topic, Payload: payload}, nil
}

// Display builds a display command.
func (b *Builder) Display(action string, now time.Time) (*Outbound, error) {
	return b.encode(b.Topics.Commands, msgs.NewDisplayCommand(action, b.Millis(now)))
}

// RankingEntries converts the rank slot values, slot i holding rank i+1.
// Empty slots are skipped.
func RankingEntries(slots []uint16) []msgs.RankingEntry {
	entries := []msgs.RankingEntry{}
	for i, id := range slots {
		if id == 0 {
			continue
		}
		entries = append(entries, msgs.RankingEntry{Rank: i + 1, MembershipID: int(id)})
	}
	return entries
}

// Ranking builds a ranking update from the rank slot values.
func (b *Builder) Ranking(slots []uint16, now time.Time) (*Outbound, error) {
	return b.encode(b.Topics.Ranking, msgs.NewRankingUpdate(RankingEntries(slots), b.Millis(now)))
}

// Final builds the final result, ErrNoWinner if winner is 0.
func (b *Builder) Final(winner uint16, now time.Time) (*Outbound, error) {
	if winner == 0 {
		return nil, ErrNoWinner
	}
	return b.encode(b.Topics.Final, msgs.NewFinalResult(winner, b.Millis(now)))
}

// Heartbeat reports the session.
func (b *Builder) Heartbeat(s *Session, now time.Time) *msgs.Heartbeat {
	ms := b.Millis(now)
	return &msgs.Heartbeat{
		Timestamp:     ms,
		DeviceID:      b.DeviceID,
		WifiConnected: s.TransportUp,
		MQTTConnected: s.BusUp,
		CurrentPage:   s.Page.String(),
		LastCommand:   s.LastCommand,
		Uptime:        ms,
	}
}

// EncodeHeartbeat encodes a heartbeat for its channel.
func (b *Builder) EncodeHeartbeat(hb *msgs.Heartbeat) (*Outbound, error) {
	return b.encode(b.Topics.Heartbeat, hb)
}

// Package msgs defines the JSON payloads exchanged on the bus.
package msgs

import (
	"encoding/json"
	"strconv"
)

// Source identifies messages sent by the remote.
const Source = "touch_remote"

// Status values understood from the display client.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// DisplayCommand asks the display to perform an action.
type DisplayCommand struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
}

// RankingEntry is a membership id at a rank.
type RankingEntry struct {
	Rank         int `json:"rank"`
	MembershipID int `json:"membership_id"`
}

// RankingUpdate carries all non-empty ranks.
type RankingUpdate struct {
	Rankings  []RankingEntry `json:"rankings"`
	Timestamp int64          `json:"timestamp"`
	Source    string         `json:"source"`
}

// FinalResult announces the winner.
type FinalResult struct {
	WinnerMembershipID string `json:"winner_membership_id"`
	Timestamp          int64  `json:"timestamp"`
	Source             string `json:"source"`
}

// Heartbeat reports liveness and the state of the remote.
type Heartbeat struct {
	Timestamp     int64  `json:"timestamp"`
	DeviceID      string `json:"device_id"`
	WifiConnected bool   `json:"wifi_connected"`
	MQTTConnected bool   `json:"mqtt_connected"`
	CurrentPage   string `json:"current_page"`
	LastCommand   string `json:"last_command"`
	Uptime        int64  `json:"uptime"`
}

// Status is published by the display client.
type Status struct {
	Status string `json:"status"`
}

// NewDisplayCommand creates a DisplayCommand.
func NewDisplayCommand(action string, ts int64) *DisplayCommand {
	return &DisplayCommand{Action: action, Timestamp: ts, Source: Source}
}

// NewRankingUpdate creates a RankingUpdate, rankings is never encoded as null.
func NewRankingUpdate(rankings []RankingEntry, ts int64) *RankingUpdate {
	if rankings == nil {
		rankings = []RankingEntry{}
	}
	return &RankingUpdate{Rankings: rankings, Timestamp: ts, Source: Source}
}

// NewFinalResult creates a FinalResult.
func NewFinalResult(winner uint16, ts int64) *FinalResult {
	return &FinalResult{
		WinnerMembershipID: strconv.Itoa(int(winner)),
		Timestamp:          ts,
		Source:             Source,
	}
}

// Encode serializes a payload.
func Encode(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeStatus decodes a status payload.
func DecodeStatus(payload []byte) (*Status, error) {
	var s Status
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Text returns the panel text for the status, false when the status
// doesn't change the panel.
func (s *Status) Text() (string, bool) {
	switch s.Status {
	case StatusOnline:
		return "Client: ONLINE", true
	case StatusOffline:
		return "Client: OFFLINE", true
	}
	return "", false
}

package remote

import "time"

// Page is a page of the panel UI.
type Page int

// Pages, the value is the panel page number.
const (
	PageMain Page = iota
	PageDisplayControl
	PageRankingInput
	PageFinalInput
	PageSettings
)

var pageNames = [...]string{"main", "display", "ranking", "final", "settings"}

// String is the page name reported in heartbeats.
func (p Page) String() string {
	if p >= 0 && int(p) < len(pageNames) {
		return pageNames[p]
	}
	return "unknown"
}

// Number is the page number on the panel.
func (p Page) Number() byte {
	return byte(p)
}

// Session is the state of the remote, owned by the controller.
type Session struct {
	Page        Page
	LastCommand string
	// LastHeartbeat is the time of the last published heartbeat.
	LastHeartbeat time.Time

	TransportUp bool
	BusUp       bool

	// SelectedRank is the rank picked for entry, 0 for none.
	SelectedRank int
	// WinnerCandidate is the quick winner slot picked, -1 for none.
	WinnerCandidate int
	// WinnerEntry is set while the winner id is being entered.
	WinnerEntry bool

	returnAt      time.Time
	returnPending bool
}

// NewSession creates a Session on the main page.
func NewSession() *Session {
	return &Session{Page: PageMain, WinnerCandidate: -1}
}

// Navigate switches pages and cancels a pending return to main.
func (s *Session) Navigate(p Page) {
	s.Page = p
	s.returnPending = false
	s.clearSelections()
}

// Confirmed goes back to main after a successful confirm. The panel
// follows once ReturnDue reports the delay elapsed.
func (s *Session) Confirmed(now time.Time, delay time.Duration) {
	s.Page = PageMain
	s.clearSelections()
	s.returnAt, s.returnPending = now.Add(delay), true
}

// ReturnDue reports once whether the panel should be switched to main.
func (s *Session) ReturnDue(now time.Time) bool {
	if !s.returnPending || now.Before(s.returnAt) {
		return false
	}
	s.returnPending = false
	return true
}

func (s *Session) clearSelections() {
	s.SelectedRank = 0
	s.WinnerCandidate = -1
	s.WinnerEntry = false
}

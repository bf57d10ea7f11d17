package remote

// TopicBasePrefix is prepended to the session id.
const TopicBasePrefix = "scoshow_"

// Topics are the bus channels of a session.
type Topics struct {
	Base       string
	Commands   string
	Ranking    string
	Final      string
	Display    string
	Background string
	Heartbeat  string
	Status     string
}

// NewTopics derives the channels from a session id.
func NewTopics(sessionID string) Topics {
	base := TopicBasePrefix + sessionID
	return Topics{
		Base:       base,
		Commands:   base + "/commands",
		Ranking:    base + "/ranking",
		Final:      base + "/final",
		Display:    base + "/display",
		Background: base + "/background",
		Heartbeat:  base + "/heartbeat",
		Status:     base + "/status",
	}
}

// All is the wildcard matching every channel.
func (t Topics) All() string {
	return t.Base + "/#"
}

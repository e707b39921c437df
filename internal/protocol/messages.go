package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	PlayerID        string   `json:"player_id"`
	Realm           string   `json:"realm"`
	Pos             [3]int   `json:"pos"`
	TickRateHz      int      `json:"tick_rate_hz"`
	Realms          []string `json:"realms"`
}

// COMMAND (client -> server): one chat command line, without the leading slash.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Line            string `json:"line"`
}

// ResultLine is one colored line of command feedback.
type ResultLine struct {
	Color string `json:"color,omitempty"`
	Text  string `json:"text"`
}

// COMMAND_RESULT (server -> client)
type CommandResultMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ID              string       `json:"id"`
	OK              bool         `json:"ok"`
	Code            string       `json:"code,omitempty"`
	Lines           []ResultLine `json:"lines"`
}

// COMPLETE (client -> server): tab completion request for a partial line.
type CompleteMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Line            string `json:"line"`
}

// COMPLETIONS (server -> client)
type CompletionsMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id"`
	Options         []string `json:"options"`
}

// ACT kinds.
const (
	ActMove     = "MOVE"
	ActPortal   = "PORTAL"
	ActDrop     = "DROP"
	ActDropHead = "DROP_HEAD"
)

// ACT (client -> server)
type ActMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	Pos             *[3]int `json:"pos,omitempty"`
	Realm           string  `json:"realm,omitempty"`
}

// Event is a loosely typed presentation or result event.
type Event map[string]interface{}

// EVENT (server -> client)
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	Event           Event  `json:"event"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}

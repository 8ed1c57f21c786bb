package protocol

// Direction tags which half of a session a frame travelled through.
type Direction int

const (
	ClientToUpstream Direction = iota
	UpstreamToClient
)

func (d Direction) String() string {
	switch d {
	case ClientToUpstream:
		return "client->upstream"
	case UpstreamToClient:
		return "upstream->client"
	default:
		return "unknown"
	}
}

// Tag is the short form used in log lines.
func (d Direction) Tag() string {
	switch d {
	case ClientToUpstream:
		return "C->S"
	case UpstreamToClient:
		return "S->C"
	default:
		return "?"
	}
}

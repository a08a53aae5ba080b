package rpc

// ChunkType defines the type of a chunk.
type ChunkType rune

const (
	ChunkTypeProgress ChunkType = 'p'
	ChunkTypeResult   ChunkType = 'r'
	ChunkTypeError    ChunkType = 'e'
	ChunkTypeBinary   ChunkType = 'b'
)

// Chunk is a response chunk sent from the vltest daemon to the vltest client.
// For a given request, clients should expect between 0 to `n` `progress` or
// `binary` chunks, and exactly 1 `result` or `error` chunk before EOF.
type Chunk struct {
	Type    ChunkType   `json:"t"` // progress, binary, result or error
	Payload interface{} `json:"p,omitempty"`
	Error   *Error      `json:"e,omitempty"`
}

type Error struct {
	Msg string `json:"m"`
}

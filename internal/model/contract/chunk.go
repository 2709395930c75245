package contract

// Chunk is one raw streaming unit as received from a provider, mapped from
// the vendor SDK without any repair. Choices may be empty, Delta may be nil
// and a terminal choice may carry no content at all.
type Chunk struct {
	Choices []ChunkChoice
	// Usage is incremental: the tokens this chunk adds to the running total.
	Usage *Usage
}

type ChunkChoice struct {
	Index        int
	Delta        *ChunkDelta
	FinishReason string
}

type ChunkDelta struct {
	Content   string
	Thinking  string
	ToolCalls []ToolCallFragment
}

// ToolCallFragment is a piece of a streamed tool call. ID and Name are
// usually only present on the first fragment of a call.
type ToolCallFragment struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ChunkStream is a pull-based provider stream. Recv returns io.EOF once the
// upstream is exhausted.
type ChunkStream interface {
	Recv() (*Chunk, error)
	Close() error
}

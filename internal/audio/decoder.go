package audio

// Decoder turns one inbound codec packet into mono PCM samples.
type Decoder interface {
	Decode(packet []byte) ([]int16, error)
	Close()
}

// DecoderFactory builds a fresh Decoder per transport connection; decoder
// state is codec-stream-local and must not be shared across connections.
type DecoderFactory func() (Decoder, error)

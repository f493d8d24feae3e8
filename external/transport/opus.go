package transport

import (
	"github.com/fluentcare/parley/internal/audio"
	"github.com/hraban/opus"
)

// maxOpusFrameMs bounds the decode buffer; Opus frames never exceed 120ms.
const maxOpusFrameMs = 120

// OpusDecoder decodes one connection's mono Opus packet stream to PCM.
type OpusDecoder struct {
	dec        *opus.Decoder
	sampleRate int
}

func NewOpusDecoder(sampleRate int) (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, 1)
	if err != nil {
		return nil, err
	}
	return &OpusDecoder{dec: dec, sampleRate: sampleRate}, nil
}

func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	pcm := make([]int16, d.sampleRate*maxOpusFrameMs/1000)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n], nil
}

func (d *OpusDecoder) Close() {}

// NewOpusDecoderFactory builds the per-connection decoder constructor;
// decoder state is stream-local and never shared between connections.
func NewOpusDecoderFactory(sampleRate int) audio.DecoderFactory {
	return func() (audio.Decoder, error) {
		dec, err := NewOpusDecoder(sampleRate)
		if err != nil {
			return nil, err
		}
		return dec, nil
	}
}

package engines

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	resampling "github.com/tphakala/go-audio-resampling"
)

// Output format of the shared playback context. Backends that play PCM
// themselves must deliver mono 16-bit little-endian samples at this
// rate; anything else goes through resamplePCM first.
const (
	sampleRate     = 22050
	channelCount   = 1
	bytesPerSample = 2
)

var (
	audioOnce sync.Once
	audioCtx  *oto.Context
	audioErr  error
)

// audioContext returns the process-wide oto playback context, creating
// it on first use. oto allows a single context per process, so every
// backend shares this one. Creation failure is sticky.
func audioContext() (*oto.Context, error) {
	audioOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channelCount,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   100 * time.Millisecond,
		})
		if err != nil {
			audioErr = fmt.Errorf("create audio context: %w", err)
			return
		}
		select {
		case <-ready:
			audioCtx = ctx
		case <-time.After(5 * time.Second):
			audioErr = errors.New("audio device not ready after 5s")
		}
	})
	return audioCtx, audioErr
}

// pcmDuration returns the playback time of n bytes of PCM in the shared
// output format.
func pcmDuration(n int) time.Duration {
	samples := n / (bytesPerSample * channelCount)
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// wavPCM extracts the PCM payload and sample rate from a RIFF WAV
// container. Data that is not WAV is returned unchanged with rate 0.
func wavPCM(data []byte) ([]byte, int) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data, 0
	}
	rate := 0
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size >= 8 {
				rate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			}
		case "data":
			return data[body : body+size], rate
		}
		pos = body + size
		// Chunks are word aligned.
		if size%2 == 1 {
			pos++
		}
	}
	return data, rate
}

// resamplePCM converts mono 16-bit PCM from srcRate to the shared
// output rate. Audio already at the output rate passes through.
func resamplePCM(pcm []byte, srcRate int) ([]byte, error) {
	if srcRate == sampleRate || srcRate <= 0 || len(pcm) == 0 {
		return pcm, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(sampleRate),
		Channels:   channelCount,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	frames := len(pcm) / bytesPerSample
	input := make([]float64, frames)
	for i := 0; i < frames; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		input[i] = float64(s) / 32768.0
	}

	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample %dHz to %dHz: %w", srcRate, sampleRate, err)
	}

	out := make([]byte, len(output)*bytesPerSample)
	for i, s := range output {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}

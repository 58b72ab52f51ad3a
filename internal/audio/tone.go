package audio

import (
	"math"
	"time"
)

// Tone parameters for the synthesis fallback clip: two short 440 Hz beeps at
// reduced gain separated by silence.
const (
	toneSampleRate = 16000
	toneFrequency  = 440.0
	toneDuration   = 600 * time.Millisecond
	toneGap        = 200 * time.Millisecond
	toneAmplitude  = 0.5 // roughly -6 dB
)

// FallbackTone renders the dual-beep WAV clip returned when speech synthesis
// fails but local audio processing is available.
func FallbackTone() ([]byte, error) {
	beep := sineBurst(toneFrequency, toneDuration, toneAmplitude)
	gap := make([]int16, sampleCount(toneGap))

	samples := make([]int16, 0, 2*len(beep)+len(gap))
	samples = append(samples, beep...)
	samples = append(samples, gap...)
	samples = append(samples, beep...)

	return EncodeWAV(samples, toneSampleRate)
}

func sineBurst(frequency float64, duration time.Duration, amplitude float64) []int16 {
	n := sampleCount(duration)
	samples := make([]int16, n)
	scale := amplitude * float64(math.MaxInt16)
	for i := range samples {
		t := float64(i) / toneSampleRate
		samples[i] = int16(scale * math.Sin(2*math.Pi*frequency*t))
	}
	return samples
}

func sampleCount(d time.Duration) int {
	return int(float64(toneSampleRate) * d.Seconds())
}

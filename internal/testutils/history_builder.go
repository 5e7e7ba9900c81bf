package testutils

import (
	"time"

	"github.com/srg/tp357/internal/tp357"
)

// Filler is a slot the device leaves empty; it decodes to no reading.
var Filler = tp357.RawSample{Temperature: 0x7fff, Humidity: 0xff}

// HistoryBuilder assembles the notification stream a TP357 sends for one
// query mode. Sequence numbers start at 1 and advance with every data frame.
type HistoryBuilder struct {
	opcode byte
	seq    int16
	frames [][]byte
}

// NewHistoryBuilder creates a builder answering mode's request.
func NewHistoryBuilder(mode tp357.Mode) *HistoryBuilder {
	cmd, err := tp357.NewQueryCommand(mode, zeroTime())
	if err != nil {
		panic(err)
	}
	return &HistoryBuilder{opcode: cmd.Opcode()}
}

// Frame appends a data frame. Missing slots are padded with Filler.
func (b *HistoryBuilder) Frame(samples ...tp357.RawSample) *HistoryBuilder {
	var slots [tp357.SamplesPerFrame]tp357.RawSample
	for i := range slots {
		slots[i] = Filler
		if i < len(samples) {
			slots[i] = samples[i]
		}
	}
	b.seq++
	b.frames = append(b.frames, tp357.PackNotification(b.opcode, b.seq, 0, slots))
	return b
}

// Frames appends n data frames of valid samples with increasing temperature.
func (b *HistoryBuilder) Frames(n int) *HistoryBuilder {
	for i := 0; i < n; i++ {
		samples := make([]tp357.RawSample, tp357.SamplesPerFrame)
		for j := range samples {
			samples[j] = tp357.RawSample{
				Temperature: int16(200 + i*tp357.SamplesPerFrame + j),
				Humidity:    uint8(40 + j),
			}
		}
		b.Frame(samples...)
	}
	return b
}

// Foreign appends a frame answering another command. It does not consume a
// sequence number.
func (b *HistoryBuilder) Foreign(opcode byte) *HistoryBuilder {
	var slots [tp357.SamplesPerFrame]tp357.RawSample
	for i := range slots {
		slots[i] = tp357.RawSample{Temperature: 100, Humidity: 50}
	}
	b.frames = append(b.frames, tp357.PackNotification(opcode, 1, 0, slots))
	return b
}

// Raw appends an arbitrary notification.
func (b *HistoryBuilder) Raw(data []byte) *HistoryBuilder {
	b.frames = append(b.frames, data)
	return b
}

// End appends the terminal notification.
func (b *HistoryBuilder) End() *HistoryBuilder {
	b.frames = append(b.frames, tp357.PackEndOfStream())
	return b
}

func (b *HistoryBuilder) Build() [][]byte {
	out := make([][]byte, len(b.frames))
	for i, f := range b.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

func zeroTime() time.Time {
	return time.Time{}
}

package tp357

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// GATT characteristics used by the history exchange.
const (
	NotifyCharUUID = "00010203-0405-0607-0809-0a0b0c0d2b10"
	WriteCharUUID  = "00010203-0405-0607-0809-0a0b0c0d2b11"
)

const (
	// DefaultNameFilter is the local name substring advertised by the TP357.
	DefaultNameFilter = "TP357 (7216)"

	// OpEndOfStream is the opcode of the terminal notification.
	OpEndOfStream byte = 0xC2

	// FrameSize is the minimal length of a data notification.
	FrameSize = 19
	// SamplesPerFrame is the number of samples packed into one notification.
	SamplesPerFrame = 5

	// MaxRawTemperature and MaxHumidity bound valid samples. The device uses
	// larger values to mark empty slots.
	MaxRawTemperature = 1024
	MaxHumidity       = 100

	// AdvertisementSize is the manufacturer record length: company id + 4 bytes.
	AdvertisementSize = 6

	sampleOffset = 4
	sampleSize   = 3
)

// NameFilter selects advertisements by local name substring.
type NameFilter string

// Match reports whether an advertised name belongs to a device of interest.
// Devices that advertise no name never match.
func (f NameFilter) Match(localName string) bool {
	return localName != "" && strings.Contains(localName, string(f))
}

// RawSample is a sample as transmitted: temperature in tenths of a degree.
type RawSample struct {
	Temperature int16
	Humidity    uint8
}

// Valid reports whether the sample holds a measurement rather than a filler.
func (s RawSample) Valid() bool {
	return int(s.Temperature) <= MaxRawTemperature && int(s.Humidity) <= MaxHumidity
}

func (s RawSample) reading(ts time.Time) Reading {
	return Reading{
		Timestamp:          ts,
		HumidityPercent:    int(s.Humidity),
		TemperatureCelsius: float64(s.Temperature) / 10,
	}
}

// RawAdvertisement is the sensor payload carried in an advertisement.
type RawAdvertisement struct {
	RawSample
	Battery uint8
}

// BatteryPercent converts the raw battery level to percent.
func (a RawAdvertisement) BatteryPercent() int {
	return int(math.Round(float64(a.Battery) / 2 * 100))
}

// UnpackAdvertisement reads the sensor fields of a manufacturer record: the
// 16-bit little-endian company id followed by the vendor payload. The fields
// start at byte 1, straddling the company id.
func UnpackAdvertisement(record []byte) (RawAdvertisement, error) {
	if len(record) < 5 {
		return RawAdvertisement{}, fmt.Errorf("manufacturer record too short: %d bytes", len(record))
	}
	return RawAdvertisement{
		RawSample: RawSample{
			Temperature: int16(binary.LittleEndian.Uint16(record[1:3])),
			Humidity:    record[3],
		},
		Battery: record[4],
	}, nil
}

// PackAdvertisement builds a manufacturer record carrying a. The low byte of
// the company id is the record-type marker.
func PackAdvertisement(marker byte, a RawAdvertisement) []byte {
	record := make([]byte, AdvertisementSize)
	record[0] = marker
	binary.LittleEndian.PutUint16(record[1:3], uint16(a.Temperature))
	record[3] = a.Humidity
	record[4] = a.Battery
	return record
}

// DecodeAdvertisement turns a manufacturer record into a Reading stamped
// with ts. It returns false for short records and for invalid samples.
func DecodeAdvertisement(record []byte, ts time.Time) (Reading, bool) {
	raw, err := UnpackAdvertisement(record)
	if err != nil || !raw.Valid() {
		return Reading{}, false
	}

	r := raw.reading(ts)
	r.BatteryPercent = intPtr(raw.BatteryPercent())
	return r, true
}

// FrameKind classifies a notification.
type FrameKind int

const (
	// FrameData carries samples for the active command.
	FrameData FrameKind = iota
	// FrameEnd is the terminal notification.
	FrameEnd
	// FrameForeign answers a different command and is ignored.
	FrameForeign
	// FrameShort is too short to hold samples and is ignored.
	FrameShort
)

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameEnd:
		return "end"
	case FrameForeign:
		return "foreign"
	case FrameShort:
		return "short"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// Frame is a decoded notification.
type Frame struct {
	Kind     FrameKind
	Opcode   byte
	Sequence int16
	Flag     byte
	// Readings holds the valid samples of a data frame in slot order.
	Readings []Reading
}

// DecodeNotification decodes one history notification for cmd. Stray,
// short and filler content is not an error: it is reported through Kind or
// dropped from Readings.
func DecodeNotification(data []byte, cmd QueryCommand) Frame {
	if len(data) == 0 {
		return Frame{Kind: FrameShort}
	}

	f := Frame{Opcode: data[0]}
	switch {
	case f.Opcode == OpEndOfStream:
		f.Kind = FrameEnd
		return f
	case f.Opcode != cmd.Opcode():
		f.Kind = FrameForeign
		return f
	case len(data) < FrameSize:
		f.Kind = FrameShort
		return f
	}

	f.Kind = FrameData
	f.Sequence = int16(binary.LittleEndian.Uint16(data[1:3]))
	f.Flag = data[3]

	base := SamplesPerFrame * (int(f.Sequence) - 1)
	for i := 0; i < SamplesPerFrame; i++ {
		ofs := sampleOffset + sampleSize*i
		s := RawSample{
			Temperature: int16(binary.LittleEndian.Uint16(data[ofs : ofs+2])),
			Humidity:    data[ofs+2],
		}
		if !s.Valid() {
			continue
		}
		f.Readings = append(f.Readings, s.reading(cmd.SampleTime(base+i)))
	}
	return f
}

// PackNotification builds a data notification answering opcode.
func PackNotification(opcode byte, sequence int16, flag byte, samples [SamplesPerFrame]RawSample) []byte {
	data := make([]byte, FrameSize)
	data[0] = opcode
	binary.LittleEndian.PutUint16(data[1:3], uint16(sequence))
	data[3] = flag
	for i, s := range samples {
		ofs := sampleOffset + sampleSize*i
		binary.LittleEndian.PutUint16(data[ofs:ofs+2], uint16(s.Temperature))
		data[ofs+2] = s.Humidity
	}
	return data
}

// PackEndOfStream builds the terminal notification.
func PackEndOfStream() []byte {
	data := make([]byte, FrameSize)
	data[0] = OpEndOfStream
	return data
}

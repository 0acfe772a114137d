package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame layout: a four-byte magic, a one-byte version, a one-byte message
// type, a four-byte little-endian payload length, then the payload.
var frameMagic = [4]byte{'P', 'T', 'R', 'C'}

const frameVersion = 1

// maxFramePayload bounds a single frame so a corrupt length prefix cannot
// ask for an absurd allocation.
const maxFramePayload = 64 << 20

// Message type tags on the wire.
const (
	typeTrace     = 0x01
	typeEventList = 0x02
	typeRunStart  = 0x03
	typeRunStop   = 0x04
	typeHello     = 0x05
)

// ErrDecode tags frames that cannot be parsed: bad magic, unknown type,
// short payload.
var ErrDecode = errors.New("undecodable frame")

type frameWriter struct {
	buf bytes.Buffer
}

func (w *frameWriter) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *frameWriter) u16(v uint16) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *frameWriter) u32(v uint32) { _ = binary.Write(&w.buf, binary.LittleEndian, v) }
func (w *frameWriter) i64(v int64)  { _ = binary.Write(&w.buf, binary.LittleEndian, v) }

func (w *frameWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *frameWriter) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *frameWriter) u16s(vs []uint16) {
	w.u32(uint32(len(vs)))
	for _, v := range vs {
		w.u16(v)
	}
}

func (w *frameWriter) u32s(vs []uint32) {
	w.u32(uint32(len(vs)))
	for _, v := range vs {
		w.u32(v)
	}
}

func (w *frameWriter) metadata(m FrameMetadata) {
	w.i64(m.Timestamp)
	w.u32(m.FrameNumber)
	w.u32(m.PeriodNumber)
	w.u32(m.ProtonsPerPulse)
	w.u16(m.VetoFlags)
	w.bool(m.Running)
}

func (w *frameWriter) frame(msgType uint8) []byte {
	payload := w.buf.Bytes()
	out := make([]byte, 0, len(payload)+10)
	out = append(out, frameMagic[:]...)
	out = append(out, frameVersion, msgType)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

// Encode serialises a message into one wire frame.
func Encode(msg any) ([]byte, error) {
	var w frameWriter
	switch m := msg.(type) {
	case *TraceMessage:
		w.u8(m.DigitiserID)
		w.u32(m.SampleRate)
		w.metadata(m.Metadata)
		w.u32(uint32(len(m.Channels)))
		for _, ch := range m.Channels {
			w.u32(ch.Channel)
			w.u16s(ch.Voltages)
		}
		return w.frame(typeTrace), nil
	case *EventListMessage:
		w.u8(m.DigitiserID)
		w.metadata(m.Metadata)
		w.u32(uint32(len(m.Channels)))
		for _, ch := range m.Channels {
			w.u32(ch.Channel)
			w.u32s(ch.Times)
			w.u16s(ch.Intensities)
		}
		return w.frame(typeEventList), nil
	case *RunStart:
		w.str(m.Name)
		w.str(m.Filename)
		w.str(m.Instrument)
		w.i64(m.Timestamp)
		return w.frame(typeRunStart), nil
	case *RunStop:
		w.str(m.Name)
		w.i64(m.Timestamp)
		return w.frame(typeRunStop), nil
	case *Hello:
		w.str(m.ConsumerGroup)
		w.str(m.Topic)
		return w.frame(typeHello), nil
	default:
		return nil, fmt.Errorf("%w: unsupported message type %T", ErrDecode, msg)
	}
}

type frameReader struct {
	buf *bytes.Reader
}

func (r *frameReader) u8() (uint8, error) { return r.buf.ReadByte() }

func (r *frameReader) u16() (uint16, error) {
	var v uint16
	err := binary.Read(r.buf, binary.LittleEndian, &v)
	return v, err
}

func (r *frameReader) u32() (uint32, error) {
	var v uint32
	err := binary.Read(r.buf, binary.LittleEndian, &v)
	return v, err
}

func (r *frameReader) i64() (int64, error) {
	var v int64
	err := binary.Read(r.buf, binary.LittleEndian, &v)
	return v, err
}

func (r *frameReader) bool() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *frameReader) count() (int, error) {
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	if int64(n) > int64(r.buf.Len()) {
		return 0, fmt.Errorf("%w: length %d exceeds remaining payload", ErrDecode, n)
	}
	return int(n), nil
}

func (r *frameReader) str() (string, error) {
	n, err := r.count()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.buf, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *frameReader) u16s() ([]uint16, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	vs := make([]uint16, n)
	for i := range vs {
		if vs[i], err = r.u16(); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func (r *frameReader) u32s() ([]uint32, error) {
	n, err := r.count()
	if err != nil {
		return nil, err
	}
	vs := make([]uint32, n)
	for i := range vs {
		if vs[i], err = r.u32(); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func (r *frameReader) metadata() (FrameMetadata, error) {
	var m FrameMetadata
	var err error
	if m.Timestamp, err = r.i64(); err != nil {
		return m, err
	}
	if m.FrameNumber, err = r.u32(); err != nil {
		return m, err
	}
	if m.PeriodNumber, err = r.u32(); err != nil {
		return m, err
	}
	if m.ProtonsPerPulse, err = r.u32(); err != nil {
		return m, err
	}
	if m.VetoFlags, err = r.u16(); err != nil {
		return m, err
	}
	m.Running, err = r.bool()
	return m, err
}

// Decode reads one frame from the stream and parses it into its message
// type. io.EOF is returned unwrapped at a clean frame boundary.
func Decode(src io.Reader) (any, error) {
	var header [10]byte
	if _, err := io.ReadFull(src, header[:1]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(src, header[1:]); err != nil {
		return nil, fmt.Errorf("%w: truncated header: %v", ErrDecode, err)
	}
	if !bytes.Equal(header[:4], frameMagic[:]) {
		return nil, fmt.Errorf("%w: bad magic %x", ErrDecode, header[:4])
	}
	if header[4] != frameVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, header[4])
	}
	msgType := header[5]
	length := binary.LittleEndian.Uint32(header[6:])
	if length > maxFramePayload {
		return nil, fmt.Errorf("%w: payload length %d exceeds limit", ErrDecode, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(src, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated payload: %v", ErrDecode, err)
	}

	r := frameReader{buf: bytes.NewReader(payload)}
	switch msgType {
	case typeTrace:
		return decodeTrace(&r)
	case typeEventList:
		return decodeEventList(&r)
	case typeRunStart:
		return decodeRunStart(&r)
	case typeRunStop:
		return decodeRunStop(&r)
	case typeHello:
		return decodeHello(&r)
	default:
		return nil, fmt.Errorf("%w: unknown message type %#x", ErrDecode, msgType)
	}
}

func decodeTrace(r *frameReader) (*TraceMessage, error) {
	var msg TraceMessage
	var err error
	if msg.DigitiserID, err = r.u8(); err != nil {
		return nil, fmt.Errorf("%w: trace: %v", ErrDecode, err)
	}
	if msg.SampleRate, err = r.u32(); err != nil {
		return nil, fmt.Errorf("%w: trace sample rate: %v", ErrDecode, err)
	}
	if msg.Metadata, err = r.metadata(); err != nil {
		return nil, fmt.Errorf("%w: trace metadata: %v", ErrDecode, err)
	}
	n, err := r.count()
	if err != nil {
		return nil, fmt.Errorf("%w: trace channels: %v", ErrDecode, err)
	}
	msg.Channels = make([]ChannelTrace, n)
	for i := range msg.Channels {
		if msg.Channels[i].Channel, err = r.u32(); err != nil {
			return nil, fmt.Errorf("%w: trace channel %d: %v", ErrDecode, i, err)
		}
		if msg.Channels[i].Voltages, err = r.u16s(); err != nil {
			return nil, fmt.Errorf("%w: trace channel %d voltages: %v", ErrDecode, i, err)
		}
	}
	return &msg, nil
}

func decodeEventList(r *frameReader) (*EventListMessage, error) {
	var msg EventListMessage
	var err error
	if msg.DigitiserID, err = r.u8(); err != nil {
		return nil, fmt.Errorf("%w: event list: %v", ErrDecode, err)
	}
	if msg.Metadata, err = r.metadata(); err != nil {
		return nil, fmt.Errorf("%w: event list metadata: %v", ErrDecode, err)
	}
	n, err := r.count()
	if err != nil {
		return nil, fmt.Errorf("%w: event list channels: %v", ErrDecode, err)
	}
	msg.Channels = make([]ChannelEvents, n)
	for i := range msg.Channels {
		if msg.Channels[i].Channel, err = r.u32(); err != nil {
			return nil, fmt.Errorf("%w: event list channel %d: %v", ErrDecode, i, err)
		}
		if msg.Channels[i].Times, err = r.u32s(); err != nil {
			return nil, fmt.Errorf("%w: event list channel %d times: %v", ErrDecode, i, err)
		}
		if msg.Channels[i].Intensities, err = r.u16s(); err != nil {
			return nil, fmt.Errorf("%w: event list channel %d intensities: %v", ErrDecode, i, err)
		}
		if len(msg.Channels[i].Times) != len(msg.Channels[i].Intensities) {
			return nil, fmt.Errorf("%w: event list channel %d: %d times but %d intensities",
				ErrDecode, i, len(msg.Channels[i].Times), len(msg.Channels[i].Intensities))
		}
	}
	return &msg, nil
}

func decodeRunStart(r *frameReader) (*RunStart, error) {
	var msg RunStart
	var err error
	if msg.Name, err = r.str(); err != nil {
		return nil, fmt.Errorf("%w: run start: %v", ErrDecode, err)
	}
	if msg.Filename, err = r.str(); err != nil {
		return nil, fmt.Errorf("%w: run start: %v", ErrDecode, err)
	}
	if msg.Instrument, err = r.str(); err != nil {
		return nil, fmt.Errorf("%w: run start: %v", ErrDecode, err)
	}
	if msg.Timestamp, err = r.i64(); err != nil {
		return nil, fmt.Errorf("%w: run start: %v", ErrDecode, err)
	}
	return &msg, nil
}

func decodeRunStop(r *frameReader) (*RunStop, error) {
	var msg RunStop
	var err error
	if msg.Name, err = r.str(); err != nil {
		return nil, fmt.Errorf("%w: run stop: %v", ErrDecode, err)
	}
	if msg.Timestamp, err = r.i64(); err != nil {
		return nil, fmt.Errorf("%w: run stop: %v", ErrDecode, err)
	}
	return &msg, nil
}

func decodeHello(r *frameReader) (*Hello, error) {
	var msg Hello
	var err error
	if msg.ConsumerGroup, err = r.str(); err != nil {
		return nil, fmt.Errorf("%w: hello: %v", ErrDecode, err)
	}
	if msg.Topic, err = r.str(); err != nil {
		return nil, fmt.Errorf("%w: hello: %v", ErrDecode, err)
	}
	return &msg, nil
}

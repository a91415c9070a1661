package fittours

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/lucasjlepore/fit-tours/message"
	"github.com/tormoder/fit/dyncrc16"
)

const (
	btEnum    = 0x00
	btUint8   = 0x02
	btUint16  = 0x84
	btUint32  = 0x86
	btUint32z = 0x8C
)

type fieldDef struct {
	num, size, baseType uint8
}

// fitWriter writes FIT files message by message so tests control the exact
// order the decoder sees.
type fitWriter struct {
	body bytes.Buffer
}

func (w *fitWriter) define(local uint8, global uint16, fields ...fieldDef) {
	w.body.WriteByte(0x40 | local)
	w.body.WriteByte(0) // reserved
	w.body.WriteByte(0) // little endian
	binary.Write(&w.body, binary.LittleEndian, global)
	w.body.WriteByte(uint8(len(fields)))
	for _, f := range fields {
		w.body.Write([]byte{f.num, f.size, f.baseType})
	}
}

func (w *fitWriter) data(local uint8, values ...any) {
	w.body.WriteByte(local)
	for _, v := range values {
		binary.Write(&w.body, binary.LittleEndian, v)
	}
}

func (w *fitWriter) bytes() []byte {
	var out bytes.Buffer
	out.WriteByte(14)
	out.WriteByte(0x20)
	binary.Write(&out, binary.LittleEndian, uint16(2132))
	binary.Write(&out, binary.LittleEndian, uint32(w.body.Len()))
	out.WriteString(".FIT")
	binary.Write(&out, binary.LittleEndian, dyncrc16.Checksum(out.Bytes()))
	out.Write(w.body.Bytes())
	binary.Write(&out, binary.LittleEndian, dyncrc16.Checksum(out.Bytes()))
	return out.Bytes()
}

func ts(t time.Time) uint32 {
	return message.DeviceSeconds(t)
}

// rideFile is a short ride: a creator device, a timer start, records with
// heart rate and power, a timer pause, one lap and the session.
func rideFile(start time.Time, records int) []byte {
	var w fitWriter

	w.define(0, 0,
		fieldDef{0, 1, btEnum},
		fieldDef{1, 2, btUint16},
		fieldDef{3, 4, btUint32z},
		fieldDef{4, 4, btUint32})
	w.data(0, uint8(4), uint16(1), uint32(3991234), ts(start))

	w.define(1, 23,
		fieldDef{253, 4, btUint32},
		fieldDef{0, 1, btUint8},
		fieldDef{2, 2, btUint16},
		fieldDef{3, 4, btUint32z},
		fieldDef{32, 1, btUint8})
	w.data(1, ts(start), uint8(0), uint16(1), uint32(3991234), uint8(90))

	w.define(2, 21,
		fieldDef{253, 4, btUint32},
		fieldDef{0, 1, btEnum},
		fieldDef{1, 1, btEnum})
	w.data(2, ts(start), uint8(0), uint8(0))

	w.define(3, 20,
		fieldDef{253, 4, btUint32},
		fieldDef{3, 1, btUint8},
		fieldDef{5, 4, btUint32},
		fieldDef{7, 2, btUint16},
		fieldDef{2, 2, btUint16})
	for i := 0; i < records; i++ {
		t := start.Add(time.Duration(i) * time.Second)
		w.data(3, ts(t), uint8(120+i), uint32(i*500), uint16(200+i), uint16((100+500)*5+i*5))
	}

	last := start.Add(time.Duration(records-1) * time.Second)
	w.data(2, ts(last), uint8(0), uint8(4))

	w.data(1, ts(last), uint8(0), uint16(1), uint32(3991234), uint8(88))

	w.define(4, 19,
		fieldDef{253, 4, btUint32},
		fieldDef{2, 4, btUint32})
	w.data(4, ts(last), ts(start))

	w.define(5, 18,
		fieldDef{253, 4, btUint32},
		fieldDef{2, 4, btUint32},
		fieldDef{5, 1, btEnum},
		fieldDef{9, 4, btUint32})
	w.data(5, ts(last), ts(start), uint8(2), uint32((records-1)*500))

	return w.bytes()
}

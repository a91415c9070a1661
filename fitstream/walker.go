package fitstream

import (
	"encoding/binary"
	"fmt"

	"github.com/lucasjlepore/fit-tours/message"
)

type fieldDef struct {
	num  uint8
	size uint8
	base baseType
}

type definition struct {
	global      uint16
	order       binary.ByteOrder
	fields      []fieldDef
	devDataSize int
}

// walker decodes the record section of one FIT file.
type walker struct {
	data        []byte
	pos         int
	definitions map[uint8]definition

	// compressed timestamp headers are relative to the last full timestamp
	lastTimestamp  uint32
	lastTimeOffset uint32

	sum         *Summary
	fn          Handler
	recordIndex *int
}

func (w *walker) read(n int) ([]byte, error) {
	if w.pos+n > len(w.data) {
		return nil, fmt.Errorf("%w: record truncated at byte %d", ErrFormat, w.pos)
	}
	out := w.data[w.pos : w.pos+n]
	w.pos += n
	return out, nil
}

func (w *walker) walk() error {
	for w.pos < len(w.data) {
		*w.recordIndex++
		hdr := w.data[w.pos]
		w.pos++

		switch {
		case hdr&compressedHeaderMask == compressedHeaderMask:
			local := (hdr & compressedLocalMesgNumMask) >> 5
			def, ok := w.definitions[local]
			if !ok {
				return fmt.Errorf("%w: no definition for compressed message local=%d record=%d", ErrFormat, local, *w.recordIndex)
			}
			ts, ok := w.compressedTimestamp(hdr & compressedTimeMask)
			if err := w.dataMessage(def, ts, ok); err != nil {
				return err
			}
		case hdr&mesgDefinitionMask == mesgDefinitionMask:
			if err := w.definition(hdr); err != nil {
				return err
			}
		default:
			local := hdr & localMesgNumMask
			def, ok := w.definitions[local]
			if !ok {
				return fmt.Errorf("%w: no definition for message local=%d record=%d", ErrFormat, local, *w.recordIndex)
			}
			if err := w.dataMessage(def, 0, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) compressedTimestamp(offset uint8) (uint32, bool) {
	if w.lastTimestamp == 0 {
		return 0, false
	}
	o := uint32(offset)
	w.lastTimestamp += (o - w.lastTimeOffset) & compressedTimeMask
	w.lastTimeOffset = o
	return w.lastTimestamp, true
}

func (w *walker) definition(hdr uint8) error {
	fixed, err := w.read(5)
	if err != nil {
		return err
	}
	var order binary.ByteOrder
	switch fixed[1] {
	case 0:
		order = binary.LittleEndian
	case 1:
		order = binary.BigEndian
	default:
		return fmt.Errorf("%w: invalid architecture %d at record %d", ErrFormat, fixed[1], *w.recordIndex)
	}

	def := definition{
		global: order.Uint16(fixed[2:4]),
		order:  order,
	}
	n := int(fixed[4])
	def.fields = make([]fieldDef, 0, n)
	for i := 0; i < n; i++ {
		raw, err := w.read(3)
		if err != nil {
			return err
		}
		def.fields = append(def.fields, fieldDef{num: raw[0], size: raw[1], base: normalizeBaseType(raw[2])})
	}

	if hdr&devDataMask == devDataMask {
		countRaw, err := w.read(1)
		if err != nil {
			return err
		}
		for i := 0; i < int(countRaw[0]); i++ {
			raw, err := w.read(3)
			if err != nil {
				return err
			}
			def.devDataSize += int(raw[1])
		}
	}

	w.definitions[hdr&localMesgNumMask] = def
	w.sum.Definitions++
	return nil
}

// dataMessage decodes one data message and hands it to the handler.
func (w *walker) dataMessage(def definition, compressedTS uint32, hasCompressedTS bool) error {
	m := message.Message{
		Kind:        message.KindForGlobal(def.global),
		Global:      def.global,
		Fields:      make(map[uint8]any, len(def.fields)),
		RecordIndex: *w.recordIndex,
	}
	if hasCompressedTS {
		m.Timestamp = message.DeviceTime(compressedTS)
	}

	for _, f := range def.fields {
		raw, err := w.read(int(f.size))
		if err != nil {
			return err
		}
		v, ok := decodeValue(raw, f.base, def.order)
		if !ok {
			continue
		}
		if f.num == message.FieldTimestamp {
			if ts, isTS := v.(uint32); isTS {
				w.lastTimestamp = ts
				w.lastTimeOffset = ts & compressedTimeMask
				m.Timestamp = message.DeviceTime(ts)
				continue
			}
		}
		m.Fields[f.num] = v
	}
	if _, err := w.read(def.devDataSize); err != nil {
		return err
	}

	w.sum.DataMessages++
	w.sum.Kinds[m.Kind.String()]++
	if w.fn == nil {
		return nil
	}
	if err := w.fn(m); err != nil {
		w.sum.reject(m, err)
	}
	return nil
}

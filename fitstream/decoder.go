// Package fitstream walks the records of raw FIT data and pushes every data
// message, in file order, to a callback as a message.Message.
package fitstream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lucasjlepore/fit-tours/message"
	"github.com/tormoder/fit"
	"github.com/tormoder/fit/dyncrc16"
)

const (
	compressedHeaderMask       = 0x80
	compressedLocalMesgNumMask = 0x60
	compressedTimeMask         = 0x1F
	mesgDefinitionMask         = 0x40
	devDataMask                = 0x20
	localMesgNumMask           = 0x0F

	headerSizeNoCRC = 12
	headerSizeCRC   = 14
	fileCRCSize     = 2
)

var (
	// ErrChecksum is returned when a header or file CRC does not match.
	ErrChecksum = errors.New("fit checksum mismatch")

	// ErrFormat is returned for data that is not a well formed FIT stream.
	ErrFormat = errors.New("malformed fit data")
)

// Handler receives each decoded data message. A returned error rejects the
// message; decoding continues.
type Handler func(message.Message) error

// FileID is the file_id message of the first file in the stream.
type FileID struct {
	Type         string `json:"type"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	SerialNumber uint32 `json:"serial_number"`
}

// Summary describes a decoded stream.
type Summary struct {
	Files           int            `json:"files"`
	ProtocolVersion uint8          `json:"protocol_version"`
	ProfileVersion  uint16         `json:"profile_version"`
	Definitions     int            `json:"definitions"`
	DataMessages    int            `json:"data_messages"`
	Kinds           map[string]int `json:"kinds"`
	Rejected        int            `json:"rejected"`
	Rejections      []string       `json:"rejections,omitempty"`
	LeftoverBytes   int            `json:"leftover_bytes"`
	FileID          *FileID        `json:"file_id,omitempty"`
}

const maxRejections = 50

func (s *Summary) reject(m message.Message, err error) {
	s.Rejected++
	if len(s.Rejections) < maxRejections {
		s.Rejections = append(s.Rejections, fmt.Sprintf("record %d (%s): %v", m.RecordIndex, m.Kind, err))
	}
}

// Decoder decodes FIT data. The zero value verifies checksums and logs
// nothing.
type Decoder struct {
	// SkipChecksum accepts data whose CRCs do not match.
	SkipChecksum bool
	Logger       *slog.Logger
}

// Decode decodes data with a zero Decoder.
func Decode(data []byte, fn Handler) (*Summary, error) {
	var d Decoder
	return d.Decode(data, fn)
}

// Decode walks every FIT file chained in data and calls fn for each data
// message. An error is returned only for data that cannot be walked; messages
// rejected by fn are counted in the summary.
func (d *Decoder) Decode(data []byte, fn Handler) (*Summary, error) {
	log := d.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sum := &Summary{Kinds: make(map[string]int)}
	if len(data) == 0 {
		return sum, fmt.Errorf("%w: empty data", ErrFormat)
	}
	if id, err := decodeFileID(data); err == nil {
		sum.FileID = id
	} else {
		log.Debug("no file_id projection", "error", err)
	}

	rest := data
	recordIndex := 0
	for len(rest) > 0 {
		if sum.Files > 0 && len(rest) < headerSizeNoCRC+fileCRCSize {
			break
		}
		n, err := d.decodeFile(rest, sum, &recordIndex, fn)
		if err != nil {
			if sum.Files == 0 {
				return sum, err
			}
			// trailing bytes after a complete file are not a chained file
			log.Warn("ignoring trailing data after fit file", "bytes", len(rest), "error", err)
			break
		}
		sum.Files++
		rest = rest[n:]
	}
	sum.LeftoverBytes = len(rest)
	return sum, nil
}

// decodeFile decodes one FIT file at the start of data and returns its length.
func (d *Decoder) decodeFile(data []byte, sum *Summary, recordIndex *int, fn Handler) (int, error) {
	if len(data) < headerSizeNoCRC+fileCRCSize {
		return 0, fmt.Errorf("%w: file too short: %d bytes", ErrFormat, len(data))
	}
	h, err := d.parseHeader(data)
	if err != nil {
		return 0, err
	}
	end := int(h.size) + int(h.dataSize)
	if len(data) < end+fileCRCSize {
		return 0, fmt.Errorf("%w: file truncated: have %d bytes, need %d", ErrFormat, len(data), end+fileCRCSize)
	}
	stored := binary.LittleEndian.Uint16(data[end : end+fileCRCSize])
	if computed := dyncrc16.Checksum(data[:end]); computed != stored && !d.SkipChecksum {
		return 0, fmt.Errorf("%w: file crc 0x%04X, computed 0x%04X", ErrChecksum, stored, computed)
	}
	if sum.Files == 0 {
		sum.ProtocolVersion = h.protocolVersion
		sum.ProfileVersion = h.profileVersion
	}

	w := &walker{
		data:        data[h.size:end],
		definitions: make(map[uint8]definition),
		sum:         sum,
		fn:          fn,
		recordIndex: recordIndex,
	}
	if err := w.walk(); err != nil {
		return 0, err
	}
	return end + fileCRCSize, nil
}

type header struct {
	size            uint8
	protocolVersion uint8
	profileVersion  uint16
	dataSize        uint32
}

func (d *Decoder) parseHeader(data []byte) (header, error) {
	size := data[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return header{}, fmt.Errorf("%w: invalid header size %d", ErrFormat, size)
	}
	if string(data[8:12]) != ".FIT" {
		return header{}, fmt.Errorf("%w: invalid data type %q", ErrFormat, data[8:12])
	}
	if size == headerSizeCRC {
		stored := binary.LittleEndian.Uint16(data[12:14])
		if computed := dyncrc16.Checksum(data[:12]); stored != 0 && stored != computed && !d.SkipChecksum {
			return header{}, fmt.Errorf("%w: header crc 0x%04X, computed 0x%04X", ErrChecksum, stored, computed)
		}
	}
	return header{
		size:            size,
		protocolVersion: data[1],
		profileVersion:  binary.LittleEndian.Uint16(data[2:4]),
		dataSize:        binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

func decodeFileID(data []byte) (*FileID, error) {
	_, id, err := fit.DecodeHeaderAndFileID(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &FileID{
		Type:         fmt.Sprint(id.Type),
		Manufacturer: fmt.Sprint(id.Manufacturer),
		Product:      fmt.Sprint(id.GetProduct()),
		SerialNumber: id.SerialNumber,
	}, nil
}

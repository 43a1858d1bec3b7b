package thumbcache

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// IHDR is always the first chunk: 4 length + 4 type + 13 data + 4 CRC.
const ihdrEnd = 8 + 4 + 4 + 13 + 4

// maxTextValue bounds decompressed zTXt/iTXt values.
const maxTextValue = 64 << 10

var errMalformedPNG = errors.New("malformed PNG")

type textField struct {
	key, value string
}

// appendChunk appends one PNG chunk with its CRC.
func appendChunk(dst []byte, typ string, data []byte) []byte {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)
	dst = append(dst, hdr[:]...)
	dst = append(dst, data...)

	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	return binary.BigEndian.AppendUint32(dst, crc.Sum32())
}

// insertText returns a copy of an encoded PNG with a tEXt chunk per field
// placed directly after IHDR.
func insertText(encoded []byte, fields []textField) ([]byte, error) {
	if len(encoded) < ihdrEnd || !bytes.Equal(encoded[:8], pngSignature) ||
		string(encoded[12:16]) != "IHDR" {
		return nil, errMalformedPNG
	}

	out := make([]byte, 0, len(encoded)+64*len(fields))
	out = append(out, encoded[:ihdrEnd]...)
	for _, f := range fields {
		if f.key == "" || len(f.key) > 79 {
			return nil, fmt.Errorf("invalid text key %q", f.key)
		}
		data := make([]byte, 0, len(f.key)+1+len(f.value))
		data = append(data, f.key...)
		data = append(data, 0)
		data = append(data, f.value...)
		out = appendChunk(out, "tEXt", data)
	}
	return append(out, encoded[ihdrEnd:]...), nil
}

// readText walks every chunk of a PNG, verifying CRCs and the presence of
// IEND, and returns the textual metadata it carries. tEXt, zTXt and iTXt
// chunks are all understood.
func readText(data []byte) (map[string]string, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], pngSignature) {
		return nil, errMalformedPNG
	}

	text := make(map[string]string)
	pos := 8
	first := true
	for {
		if len(data)-pos < 12 {
			return nil, fmt.Errorf("%w: truncated at offset %d", errMalformedPNG, pos)
		}
		length := int(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		if length < 0 || length > len(data)-pos-12 {
			return nil, fmt.Errorf("%w: chunk %q overruns file", errMalformedPNG, typ)
		}
		body := data[pos+8 : pos+8+length]
		want := binary.BigEndian.Uint32(data[pos+8+length:])
		if crc32.ChecksumIEEE(data[pos+4:pos+8+length]) != want {
			return nil, fmt.Errorf("%w: bad CRC in %q chunk", errMalformedPNG, typ)
		}
		if first && typ != "IHDR" {
			return nil, fmt.Errorf("%w: first chunk is %q", errMalformedPNG, typ)
		}
		first = false
		pos += 12 + length

		switch typ {
		case "IEND":
			return text, nil
		case "tEXt":
			if k, v, ok := bytes.Cut(body, []byte{0}); ok {
				text[string(k)] = latin1(v)
			}
		case "zTXt":
			k, rest, ok := bytes.Cut(body, []byte{0})
			if !ok || len(rest) < 1 || rest[0] != 0 {
				continue
			}
			if v, err := inflate(rest[1:]); err == nil {
				text[string(k)] = latin1(v)
			}
		case "iTXt":
			if k, v, ok := parseITXt(body); ok {
				text[k] = v
			}
		}
	}
}

// parseITXt decodes keyword, compression flag, method, language tag,
// translated keyword and UTF-8 text.
func parseITXt(body []byte) (string, string, bool) {
	k, rest, ok := bytes.Cut(body, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed, method := rest[0], rest[1]
	rest = rest[2:]
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
		return "", "", false
	}
	if compressed == 1 {
		if method != 0 {
			return "", "", false
		}
		v, err := inflate(rest)
		if err != nil {
			return "", "", false
		}
		rest = v
	}
	return string(k), string(rest), true
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxTextValue))
}

// latin1 converts ISO 8859-1 bytes to a Go string.
func latin1(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func decodeConfig(data []byte) (image.Config, error) {
	return png.DecodeConfig(bytes.NewReader(data))
}

package thumbcache

import (
	"bytes"
	"compress/zlib"
	"image/png"
	"testing"
)

func encodedPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(4, 4)); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func spliceChunk(encoded []byte, typ string, body []byte) []byte {
	out := append([]byte(nil), encoded[:ihdrEnd]...)
	out = appendChunk(out, typ, body)
	return append(out, encoded[ihdrEnd:]...)
}

func zlibBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatal(err)
	}
	w.Close()
	return buf.Bytes()
}

func TestInsertAndReadText(t *testing.T) {
	data, err := insertText(encodedPNG(t), []textField{
		{KeyURI, "file:///a%20b.png"},
		{KeyMTime, "42"},
	})
	if err != nil {
		t.Fatal(err)
	}

	text, err := readText(data)
	if err != nil {
		t.Fatalf("readText() error = %v", err)
	}
	if text[KeyURI] != "file:///a%20b.png" || text[KeyMTime] != "42" {
		t.Errorf("readText() = %v", text)
	}

	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("standard decoder rejects output: %v", err)
	}
}

func TestReadTextCompressedChunks(t *testing.T) {
	base := encodedPNG(t)

	ztxt := append([]byte("Thumb::URI\x00\x00"), zlibBytes(t, "file:///z.png")...)
	data := spliceChunk(base, "zTXt", ztxt)

	itxt := append([]byte("Thumb::Mimetype\x00\x01\x00en\x00\x00"), zlibBytes(t, "image/png")...)
	data = spliceChunk(data, "iTXt", itxt)

	data = spliceChunk(data, "iTXt", []byte("Thumb::MTime\x00\x00\x00\x00\x007"))

	text, err := readText(data)
	if err != nil {
		t.Fatal(err)
	}
	if text[KeyURI] != "file:///z.png" {
		t.Errorf("zTXt value = %q", text[KeyURI])
	}
	if text[KeyMimetype] != "image/png" {
		t.Errorf("compressed iTXt value = %q", text[KeyMimetype])
	}
	if text[KeyMTime] != "7" {
		t.Errorf("uncompressed iTXt value = %q", text[KeyMTime])
	}
}

func TestReadTextLatin1(t *testing.T) {
	data := spliceChunk(encodedPNG(t), "tEXt", []byte("Comment\x00caf\xe9"))
	text, err := readText(data)
	if err != nil {
		t.Fatal(err)
	}
	if text["Comment"] != "café" {
		t.Errorf("Latin-1 value = %q, want café", text["Comment"])
	}
}

func TestInsertTextRejectsNonPNG(t *testing.T) {
	if _, err := insertText([]byte("GIF89a........................................"), nil); err == nil {
		t.Error("insertText() accepted a GIF")
	}
	if _, err := insertText(encodedPNG(t), []textField{{"", "v"}}); err == nil {
		t.Error("insertText() accepted an empty key")
	}
}

func TestReadTextRequiresIEND(t *testing.T) {
	data := encodedPNG(t)
	if _, err := readText(data[:len(data)-12]); err == nil {
		t.Error("readText() accepted a PNG without IEND")
	}
}

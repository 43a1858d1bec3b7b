package thumbcache

import (
	"image"
	"strconv"
)

// Metadata keys defined by the Thumbnail Managing Standard.
const (
	KeyURI         = "Thumb::URI"
	KeyMTime       = "Thumb::MTime"
	KeySize        = "Thumb::Size"
	KeyMimetype    = "Thumb::Mimetype"
	KeyImageWidth  = "Thumb::Image::Width"
	KeyImageHeight = "Thumb::Image::Height"
	KeySoftware    = "Software"
)

// Software is written into every thumbnail this package stores.
const Software = "background-picker"

// Entry is one cached thumbnail. Entries are not modified after they are
// built or loaded and may be shared between goroutines.
type Entry struct {
	Key   Key
	Class SizeClass

	// URI and MTime identify the source version the thumbnail depicts.
	URI   string
	MTime int64
	// Size is the source size in bytes, or -1 if not recorded.
	Size     int64
	MimeType string

	// SourceWidth and SourceHeight are 0 when not recorded.
	SourceWidth  int
	SourceHeight int

	// Image is set for freshly rendered entries and nil for loaded ones.
	Image image.Image
	// Data is the encoded PNG, including metadata.
	Data []byte
}

// Bounds returns the thumbnail dimensions, or zero if unknown.
func (e *Entry) Bounds() (width, height int) {
	if e.Image != nil {
		b := e.Image.Bounds()
		return b.Dx(), b.Dy()
	}
	if cfg, err := decodeConfig(e.Data); err == nil {
		return cfg.Width, cfg.Height
	}
	return 0, 0
}

// textFields returns the metadata to embed, in a stable order.
func (e *Entry) textFields() []textField {
	fields := []textField{
		{KeyURI, e.URI},
		{KeyMTime, strconv.FormatInt(e.MTime, 10)},
	}
	if e.Size >= 0 {
		fields = append(fields, textField{KeySize, strconv.FormatInt(e.Size, 10)})
	}
	if e.MimeType != "" {
		fields = append(fields, textField{KeyMimetype, e.MimeType})
	}
	if e.SourceWidth > 0 && e.SourceHeight > 0 {
		fields = append(fields,
			textField{KeyImageWidth, strconv.Itoa(e.SourceWidth)},
			textField{KeyImageHeight, strconv.Itoa(e.SourceHeight)},
		)
	}
	return append(fields, textField{KeySoftware, Software})
}

// entryFromText fills the metadata fields of an entry from parsed tEXt
// chunks. ok is false when a required key is missing or malformed.
func entryFromText(text map[string]string) (e Entry, ok bool) {
	uri, hasURI := text[KeyURI]
	mtimeStr, hasMTime := text[KeyMTime]
	if !hasURI || !hasMTime || uri == "" {
		return e, false
	}
	mtime, err := strconv.ParseInt(mtimeStr, 10, 64)
	if err != nil {
		return e, false
	}

	e.URI = uri
	e.MTime = mtime
	e.Size = -1
	if s, err := strconv.ParseInt(text[KeySize], 10, 64); err == nil && s >= 0 {
		e.Size = s
	}
	e.MimeType = text[KeyMimetype]
	e.SourceWidth, _ = strconv.Atoi(text[KeyImageWidth])
	e.SourceHeight, _ = strconv.Atoi(text[KeyImageHeight])
	return e, true
}

package slitdrift

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/astrogo/fitsio"
)

// FitsMetadata holds the primary header cards as strings keyed by upper-case
// card name.
type FitsMetadata struct {
	Headers map[string]string
}

// NewFitsMetadata creates an empty FitsMetadata.
func NewFitsMetadata() *FitsMetadata {
	return &FitsMetadata{Headers: make(map[string]string)}
}

func metadataFromHeader(h *fitsio.Header) *FitsMetadata {
	m := NewFitsMetadata()
	for _, key := range h.Keys() {
		card := h.Get(key)
		if card == nil || card.Value == nil {
			continue
		}
		var v string
		switch val := card.Value.(type) {
		case string:
			v = strings.TrimRight(val, " ")
		case bool:
			if val {
				v = "True"
			} else {
				v = "False"
			}
		default:
			v = fmt.Sprint(val)
		}
		if v != "" {
			m.Headers[strings.ToUpper(key)] = v
		}
	}
	return m
}

func (m *FitsMetadata) GetString(key string) string {
	if v, ok := m.Headers[strings.ToUpper(key)]; ok {
		return v
	}
	return ""
}

func (m *FitsMetadata) GetDouble(key string) (float64, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GetTime parses a UTC time-of-day card. When dateKey names a DATE-OBS style
// card the result carries that date, otherwise the zero date.
func (m *FitsMetadata) GetTime(key, dateKey string) (time.Time, bool) {
	v := strings.TrimSpace(m.GetString(key))
	if v == "" {
		return time.Time{}, false
	}
	if d := strings.TrimSpace(m.GetString(dateKey)); d != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", d+" "+v); err == nil {
			return t, true
		}
	}
	t, err := time.Parse("15:04:05", v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ReadFrame reads the primary image and header of a FITS file.
func ReadFrame(path string, cfg Config) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	frame, err := readFrameFromReader(f, filepath.Base(path), cfg, false)
	if err != nil {
		return nil, err
	}
	frame.Info.Path = path
	return frame, nil
}

// ReadFrameInfo reads only the header of a FITS file.
func ReadFrameInfo(path string, cfg Config) (FrameInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return FrameInfo{}, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	frame, err := readFrameFromReader(f, filepath.Base(path), cfg, true)
	if err != nil {
		return FrameInfo{}, err
	}
	frame.Info.Path = path
	return frame.Info, nil
}

// ReadFrameFromBytes decodes an in-memory FITS file.
func ReadFrameFromBytes(name string, data []byte, cfg Config) (*Frame, error) {
	return readFrameFromReader(bytes.NewReader(data), name, cfg, false)
}

func readFrameFromReader(r io.Reader, name string, cfg Config, skipPixelData bool) (*Frame, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("reading FITS %s: %w", name, err)
	}
	defer f.Close()

	hdu := f.HDU(0)
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("FITS %s: primary HDU is not an image", name)
	}
	hdr := img.Header()
	meta := metadataFromHeader(hdr)
	info := frameInfoFromMetadata(name, meta, cfg.Headers)

	axes := hdr.Axes()
	if len(axes) < 2 || axes[0] == 0 || axes[1] == 0 {
		return nil, fmt.Errorf("invalid FITS %s: axes %v", name, axes)
	}
	width, height := axes[0], axes[1]

	if skipPixelData {
		return &Frame{Info: info}, nil
	}

	bzero := 0.0
	bscale := 1.0
	if v, ok := meta.GetDouble("BZERO"); ok {
		bzero = v
	}
	if v, ok := meta.GetDouble("BSCALE"); ok {
		bscale = v
	}
	pixels, err := decodePixels(img.Raw(), hdr.Bitpix(), width*height, bscale, bzero)
	if err != nil {
		return nil, fmt.Errorf("FITS %s: %w", name, err)
	}
	return NewFrame(info, height, width, pixels)
}

// decodePixels converts big-endian FITS data to physical float32 values.
func decodePixels(raw []byte, bitpix, numPixels int, bscale, bzero float64) ([]float32, error) {
	bytesPer := bitpix / 8
	if bytesPer < 0 {
		bytesPer = -bytesPer
	}
	if bytesPer == 0 || len(raw) < numPixels*bytesPer {
		return nil, fmt.Errorf("%d bytes of BITPIX %d data for %d pixels", len(raw), bitpix, numPixels)
	}

	pixels := make([]float32, numPixels)
	physical := func(i int, v float64) {
		pixels[i] = float32(v*bscale + bzero)
	}

	switch bitpix {
	case 8:
		for i := 0; i < numPixels; i++ {
			physical(i, float64(raw[i]))
		}
	case 16:
		for i := 0; i < numPixels; i++ {
			physical(i, float64(int16(binary.BigEndian.Uint16(raw[i*2:]))))
		}
	case 32:
		for i := 0; i < numPixels; i++ {
			physical(i, float64(int32(binary.BigEndian.Uint32(raw[i*4:]))))
		}
	case -32:
		for i := 0; i < numPixels; i++ {
			physical(i, float64(math.Float32frombits(binary.BigEndian.Uint32(raw[i*4:]))))
		}
	case -64:
		for i := 0; i < numPixels; i++ {
			physical(i, math.Float64frombits(binary.BigEndian.Uint64(raw[i*8:])))
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX: %d", bitpix)
	}
	return pixels, nil
}

func frameInfoFromMetadata(name string, meta *FitsMetadata, keys HeaderKeys) FrameInfo {
	info := FrameInfo{
		Name:        name,
		Number:      FrameNumber(name),
		Object:      meta.GetString(keys.Object),
		GratingMode: meta.GetString(keys.GratingMode),
	}
	info.YOffset, info.HasYOffset = meta.GetDouble(keys.YOffset)
	info.UTC, _ = meta.GetTime(keys.UTC, keys.Date)
	info.Airmass = headerFloat(meta, keys.Airmass)
	info.Elevation = headerFloat(meta, keys.Elevation)
	info.PositionAngle = headerFloat(meta, keys.PositionAngle)
	return info
}

func headerFloat(meta *FitsMetadata, key string) float64 {
	if v, ok := meta.GetDouble(key); ok {
		return v
	}
	return math.NaN()
}

// FrameNumber returns the exposure number encoded as the last four digits
// before the extension (m210423_0240.fits is 240), or -1.
func FrameNumber(name string) int {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if len(base) < 4 {
		return -1
	}
	n, err := strconv.Atoi(base[len(base)-4:])
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// WriteFrame writes f as a BITPIX -32 primary image carrying the header
// cards FrameInfo was read from.
func WriteFrame(path string, f *Frame, keys HeaderKeys) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating FITS file: %w", err)
	}
	if err := writeFrame(out, f, keys); err != nil {
		out.Close()
		return fmt.Errorf("writing FITS %s: %w", path, err)
	}
	return out.Close()
}

func writeFrame(w io.Writer, f *Frame, keys HeaderKeys) error {
	ff, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer ff.Close()

	img := fitsio.NewImage(-32, []int{f.Cols(), f.Rows()})
	defer img.Close()

	info := f.Info
	cards := []fitsio.Card{
		{Name: keys.Object, Value: info.Object},
		{Name: keys.GratingMode, Value: info.GratingMode},
	}
	if info.HasYOffset {
		cards = append(cards, fitsio.Card{Name: keys.YOffset, Value: info.YOffset, Comment: "[arcsec] nod offset"})
	}
	if !info.UTC.IsZero() {
		cards = append(cards, fitsio.Card{Name: keys.UTC, Value: info.UTC.Format("15:04:05.000")})
		if info.UTC.Year() > 0 {
			cards = append(cards, fitsio.Card{Name: keys.Date, Value: info.UTC.Format("2006-01-02")})
		}
	}
	for _, c := range []struct {
		key string
		v   float64
	}{{keys.Airmass, info.Airmass}, {keys.Elevation, info.Elevation}, {keys.PositionAngle, info.PositionAngle}} {
		if !math.IsNaN(c.v) {
			cards = append(cards, fitsio.Card{Name: c.key, Value: c.v})
		}
	}
	if err := img.Header().Append(cards...); err != nil {
		return err
	}

	data := f.Pixels()
	if err := img.Write(&data); err != nil {
		return err
	}
	return ff.Write(img)
}

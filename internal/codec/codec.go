// Package codec turns JSON documents into the strings the key-value store
// holds and back.  Small documents are stored as plain JSON; larger ones are
// zstd-compressed behind a versioned marker.  Values written by older app
// versions in the run-length legacy format are still readable.
package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// DefaultThreshold is the JSON length below which values are stored as-is.
const DefaultThreshold = 1024

// MaxDecodedSize bounds what any decode path may produce.
const MaxDecodedSize = 8 << 20

const (
	v1Marker     = "cz1:"
	legacyMarker = "rl0:"
)

var (
	// ErrCorrupted means no decoder could make sense of a stored value.
	ErrCorrupted = errors.New("codec: corrupted value")
	// ErrMalformed marks a payload whose framing is broken, such as a
	// legacy run that would expand past the allowed size.
	ErrMalformed = errors.New("codec: malformed payload")
)

// Kind tags how a stored string was produced.
type Kind int

const (
	Plain Kind = iota
	CompressedV1
	Legacy
)

func (k Kind) String() string {
	switch k {
	case CompressedV1:
		return "compressed-v1"
	case Legacy:
		return "legacy"
	default:
		return "plain"
	}
}

// Payload is a persisted string split into its format tag and body.
type Payload struct {
	Kind Kind
	Body string
}

// Parse sniffs the marker once; everything after works on the tag.
func Parse(raw string) Payload {
	switch {
	case strings.HasPrefix(raw, v1Marker):
		return Payload{Kind: CompressedV1, Body: raw[len(v1Marker):]}
	case strings.HasPrefix(raw, legacyMarker):
		return Payload{Kind: Legacy, Body: raw[len(legacyMarker):]}
	default:
		return Payload{Kind: Plain, Body: raw}
	}
}

// String renders the payload in its persisted form.
func (p Payload) String() string {
	switch p.Kind {
	case CompressedV1:
		return v1Marker + p.Body
	case Legacy:
		return legacyMarker + p.Body
	default:
		return p.Body
	}
}

// Codec is safe for concurrent use.
type Codec struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

// New builds a Codec.  threshold <= 0 selects DefaultThreshold.
func New(threshold int) (*Codec, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(MaxDecodedSize),
		zstd.WithDecoderConcurrency(0),
	)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{threshold: threshold, enc: enc, dec: dec}, nil
}

// Threshold reports the compression threshold in bytes.
func (c *Codec) Threshold() int { return c.threshold }

// Encode returns the persisted form of a JSON document.
func (c *Codec) Encode(data []byte, compress bool) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("%w: input is not JSON", ErrMalformed)
	}
	if !compress || len(data) < c.threshold {
		return Payload{Kind: Plain, Body: string(data)}.String(), nil
	}
	packed := c.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	return Payload{Kind: CompressedV1, Body: base64.StdEncoding.EncodeToString(packed)}.String(), nil
}

// Decode returns the JSON document a stored string holds.
func (c *Codec) Decode(raw string) ([]byte, error) {
	p := Parse(raw)
	var (
		out []byte
		err error
	)
	switch p.Kind {
	case CompressedV1:
		out, err = c.decodeV1(p.Body)
	case Legacy:
		out, err = expandLegacy(p.Body)
	case Plain:
		out = []byte(p.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, p.Kind, err)
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("%w: %s payload is not JSON", ErrCorrupted, p.Kind)
	}
	return out, nil
}

func (c *Codec) decodeV1(body string) ([]byte, error) {
	packed, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, err
	}
	out, err := c.dec.DecodeAll(packed, nil)
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecodedSize {
		return nil, ErrMalformed
	}
	return out, nil
}

// Close releases the zstd workers.
func (c *Codec) Close() {
	if c == nil {
		return
	}
	_ = c.enc.Close()
	c.dec.Close()
}

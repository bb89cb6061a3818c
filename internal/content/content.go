// Package content seals record content for storage and recovers it. Recovery
// either yields the exact bytes that were sealed or reports that no content
// is available; it never returns partial or unverified data.
package content

import (
	"bytes"
	"fmt"

	"github.com/starford/casebook/internal/apperr"
	"github.com/starford/casebook/internal/checksum"
)

// Sealer protects content at rest. The encryption scheme itself lives
// outside this repository; implementations plug in here.
type Sealer interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// Content is the result of recovering stored content.
type Content struct {
	Available bool   `json:"available"`
	Data      []byte `json:"data,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Unavailable builds the explicit no-content result.
func Unavailable(reason string) Content {
	return Content{Reason: reason}
}

// Recover opens sealed with s. Any failure, including an integrity mismatch,
// produces an unavailable Content.
func Recover(s Sealer, sealed []byte) Content {
	if len(sealed) == 0 {
		return Unavailable("no content stored")
	}
	plain, err := s.Open(sealed)
	if err != nil {
		return Unavailable(err.Error())
	}
	return Content{Available: true, Data: plain}
}

var magic = []byte("cb1:")

// digestLen is the length of a hex SHA-256 digest.
const digestLen = 64

// Envelope is a pass-through Sealer that stores content in clear text behind
// a SHA-256 digest, so corruption is detected on Open. Inner, when set, is
// applied to the framed content (e.g. a field-level cipher).
type Envelope struct {
	Inner Sealer
}

// Seal implements Sealer.
func (e Envelope) Seal(plain []byte) ([]byte, error) {
	framed := make([]byte, 0, len(magic)+digestLen+len(plain))
	framed = append(framed, magic...)
	framed = append(framed, checksum.Sum(plain)...)
	framed = append(framed, plain...)
	if e.Inner == nil {
		return framed, nil
	}
	out, err := e.Inner.Seal(framed)
	if err != nil {
		return nil, fmt.Errorf("content: seal: %w", err)
	}
	return out, nil
}

// Open implements Sealer.
func (e Envelope) Open(sealed []byte) ([]byte, error) {
	framed := sealed
	if e.Inner != nil {
		var err error
		if framed, err = e.Inner.Open(sealed); err != nil {
			return nil, fmt.Errorf("content: %w: %w", apperr.ErrNoContent, err)
		}
	}
	if len(framed) < len(magic)+digestLen || !bytes.HasPrefix(framed, magic) {
		return nil, fmt.Errorf("content: %w: unrecognised envelope", apperr.ErrNoContent)
	}
	digest := string(framed[len(magic) : len(magic)+digestLen])
	plain := framed[len(magic)+digestLen:]
	if checksum.Sum(plain) != digest {
		return nil, fmt.Errorf("content: %w: digest mismatch", apperr.ErrNoContent)
	}
	return append([]byte(nil), plain...), nil
}

package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Datagram layout: "<camera-id>:<frame-id>:" in ASCII, then JPEG bytes.
// Camera tag is 1-8 ASCII characters, frame id 1-20 decimal digits.

var ErrMalformedHeader = errors.New("malformed frame header")

const (
	maxCameraTagLen = 8
	maxFrameIDLen   = 20
)

// BuildHeader serializes the datagram prefix for a frame.
func BuildHeader(cameraID string, frameID int64) []byte {
	return []byte(fmt.Sprintf("%s:%d:", cameraID, frameID))
}

// ParseDatagram splits a received datagram into camera tag, frame id and the
// JPEG payload. Whether the tag names a known camera is the receiver's call.
func ParseDatagram(data []byte) (cameraID string, frameID int64, payload []byte, err error) {
	sep1 := bytes.IndexByte(data, ':')
	if sep1 <= 0 || sep1 > maxCameraTagLen {
		return "", 0, nil, fmt.Errorf("%w: missing camera separator", ErrMalformedHeader)
	}
	tag := data[:sep1]
	for _, c := range tag {
		if c < 0x21 || c > 0x7e {
			return "", 0, nil, fmt.Errorf("%w: non-ASCII camera tag", ErrMalformedHeader)
		}
	}

	rest := data[sep1+1:]
	sep2 := bytes.IndexByte(rest, ':')
	if sep2 <= 0 || sep2 > maxFrameIDLen {
		return "", 0, nil, fmt.Errorf("%w: missing frame-id separator", ErrMalformedHeader)
	}
	idField := rest[:sep2]
	for _, c := range idField {
		if c < '0' || c > '9' {
			return "", 0, nil, fmt.Errorf("%w: frame id not decimal", ErrMalformedHeader)
		}
	}
	id, err := strconv.ParseInt(string(idField), 10, 64)
	if err != nil {
		return "", 0, nil, fmt.Errorf("%w: frame id overflow", ErrMalformedHeader)
	}

	return string(tag), id, rest[sep2+1:], nil
}

package framesource

import (
	"bufio"
	"bytes"
	"io"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const (
	initialScanBuffer = 256 * 1024
	maxFrameBytes     = 16 * 1024 * 1024
)

// splitJPEG is a bufio.SplitFunc yielding complete JPEG images from an
// MJPEG byte stream. Bytes outside SOI..EOI are discarded.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF || len(data) == 0 {
			return len(data), nil, nil
		}
		// keep a trailing 0xFF that may begin the next marker
		return len(data) - 1, nil, nil
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start + len(jpegSOI) + len(jpegEOI)
	return end, data[start:end], nil
}

func newJPEGScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, initialScanBuffer), maxFrameBytes)
	sc.Split(splitJPEG)
	return sc
}

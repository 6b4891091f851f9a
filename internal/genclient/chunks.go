package genclient

import (
	"errors"
	"io"
	"unicode/utf8"
)

const readSize = 4096

// readChunks forwards r to onChunk read by read, holding back a trailing
// incomplete UTF-8 sequence until the next read completes it. Whatever is
// held back when r ends is flushed as is.
func readChunks(r io.Reader, onChunk func(string)) error {
	buf := make([]byte, readSize)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			cut := completePrefix(data)
			if cut > 0 {
				onChunk(string(data[:cut]))
			}
			pending = append([]byte(nil), data[cut:]...)
		}
		if err != nil {
			if len(pending) > 0 {
				onChunk(string(pending))
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &TransportError{Err: err}
		}
	}
}

// completePrefix returns the length of the longest prefix of p that does
// not end inside a multi-byte rune.
func completePrefix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if utf8.FullRune(p[i:]) {
				return len(p)
			}
			return i
		}
	}
	return len(p)
}

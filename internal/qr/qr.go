// Package qr turns the QR payloads handed out by the API into something a
// terminal can show. Raw payloads are re-encoded as block art; PNG data URIs
// cannot be drawn in a terminal and are written to disk instead.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const dataURIPrefix = "data:"

var ErrNotImage = errors.New("qr: payload is not an image data URI")

// IsDataURI reports whether payload is a data: URI rather than raw QR text.
func IsDataURI(payload string) bool {
	return strings.HasPrefix(payload, dataURIPrefix)
}

// Art renders raw QR text as terminal block characters.
func Art(payload string) (string, error) {
	if payload == "" {
		return "", errors.New("qr: empty payload")
	}
	code, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("qr: encode: %w", err)
	}
	return code.ToSmallString(false), nil
}

// WritePNG encodes raw QR text into a PNG file of the given pixel size.
func WritePNG(payload, path string, size int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return qrcode.WriteFile(payload, qrcode.Medium, size, path)
}

// DecodeDataURI returns the bytes and MIME type of a base64 image data URI.
func DecodeDataURI(uri string) ([]byte, string, error) {
	if !IsDataURI(uri) {
		return nil, "", ErrNotImage
	}
	meta, body, ok := strings.Cut(strings.TrimPrefix(uri, dataURIPrefix), ",")
	if !ok {
		return nil, "", fmt.Errorf("qr: data URI has no payload")
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", ErrNotImage
	}
	if enc != "base64" {
		return nil, "", fmt.Errorf("qr: unsupported data URI encoding %q", enc)
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, "", fmt.Errorf("qr: decode data URI: %w", err)
	}
	return data, mime, nil
}

// SaveDataURI writes the image inside uri to dir/name, adding an extension
// from the MIME type, and returns the path written.
func SaveDataURI(uri, dir, name string) (string, error) {
	data, mime, err := DecodeDataURI(uri)
	if err != nil {
		return "", err
	}
	ext := "." + strings.TrimPrefix(mime, "image/")
	if ext == ".jpeg" {
		ext = ".jpg"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Render is what the connection view shows for a payload.
type Render struct {
	// Art is set when the payload could be drawn in the terminal.
	Art string
	// File is set when the payload was saved as an image.
	File string
}

// Present picks the right presentation for payload. Images are saved under
// dir using sessionID as the file name.
func Present(payload, dir, sessionID string) (Render, error) {
	if IsDataURI(payload) {
		if sessionID == "" {
			sessionID = "qr"
		}
		path, err := SaveDataURI(payload, dir, "qr-"+sanitize(sessionID))
		if err != nil {
			return Render{}, err
		}
		return Render{File: path}, nil
	}
	art, err := Art(payload)
	if err != nil {
		return Render{}, err
	}
	return Render{Art: art}, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// Package eml decodes RFC 5322 email messages (.eml files).
package eml

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/normalisers/html"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles EML documents.
type Normaliser struct{}

// New creates a new EML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedExtensions returns the extensions this normaliser handles.
func (n *Normaliser) SupportedExtensions() []string {
	return []string{".eml"}
}

// Normalise returns the message as one block: the From, To, Date and
// Subject header lines, a blank line, then the body. Plain text parts are
// preferred over HTML; attachments are ignored.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawDocument) ([]domain.Block, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw.Content))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing message: %v", domain.ErrInvalidInput, err)
	}

	headers := []struct{ key, value string }{
		{"From", decodeHeader(msg.Header.Get("From"))},
		{"To", decodeHeader(msg.Header.Get("To"))},
		{"Date", msg.Header.Get("Date")},
		{"Subject", decodeHeader(msg.Header.Get("Subject"))},
	}

	body, err := readBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return nil, err
	}

	src := make(map[string]any, len(raw.Metadata)+6)
	for k, v := range raw.Metadata {
		src[k] = v
	}
	src[domain.MetaFilePath] = raw.Path
	src["format"] = "eml"

	var text strings.Builder
	for _, h := range headers {
		if h.value == "" {
			continue
		}
		fmt.Fprintf(&text, "%s: %s\n", h.key, h.value)
		key := strings.ToLower(h.key)
		if key == "subject" {
			key = "title"
		}
		src[key] = h.value
	}
	text.WriteString("\n")
	text.WriteString(body)

	return []domain.Block{{
		Text:     strings.TrimSpace(text.String()),
		Metadata: map[string]any{domain.MetaSource: src},
	}}, nil
}

// decodeHeader decodes RFC 2047 encoded words, returning the header as is
// when it cannot be decoded.
func decodeHeader(header string) string {
	if header == "" {
		return ""
	}
	decoded, err := new(mime.WordDecoder).DecodeHeader(header)
	if err != nil {
		return header
	}
	return decoded
}

// readBody returns the text of a message or part body.
func readBody(contentType, encoding string, r io.Reader) (string, error) {
	if contentType == "" {
		contentType = "text/plain"
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		return readMultipart(r, params["boundary"])
	}

	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", domain.ErrInvalidInput, err)
	}

	switch mediaType {
	case "text/html":
		_, text := html.Extract(content)
		return text, nil
	case "text/plain":
		return strings.ReplaceAll(string(content), "\r\n", "\n"), nil
	default:
		return "", nil
	}
}

// readMultipart collects the text of each part, recursing into nested
// multiparts, and prefers plain text over HTML.
func readMultipart(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		return "", nil
	}

	var plain, rich []string
	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: reading multipart: %v", domain.ErrInvalidInput, err)
		}

		if disposition, _, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition")); disposition == "attachment" {
			part.Close()
			continue
		}
		contentType := part.Header.Get("Content-Type")
		mediaType, _, _ := mime.ParseMediaType(contentType)
		text, err := readBody(contentType, part.Header.Get("Content-Transfer-Encoding"), part)
		part.Close()
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if mediaType == "text/html" {
			rich = append(rich, text)
		} else {
			plain = append(plain, text)
		}
	}

	if len(plain) > 0 {
		return strings.Join(plain, "\n"), nil
	}
	return strings.Join(rich, "\n"), nil
}

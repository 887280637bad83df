package eml

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
)

// crlf converts a literal message to wire line endings.
func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func normalise(t *testing.T, message string) domain.Block {
	t.Helper()
	blocks, err := New().Normalise(context.Background(), &domain.RawDocument{
		Path:    "/uploads/zoo/mail.eml",
		Content: crlf(message),
	})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	return blocks[0]
}

func TestSupportedExtensions(t *testing.T) {
	assert.Equal(t, []string{".eml"}, New().SupportedExtensions())
}

func TestNormalise_NilDocument(t *testing.T) {
	blocks, err := New().Normalise(context.Background(), nil)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, blocks)
}

func TestNormalise_PlainMessage(t *testing.T) {
	block := normalise(t, `From: Ann <ann@example.com>
To: zoo@example.com
Date: Mon, 2 Mar 2026 09:30:00 +0000
Subject: =?UTF-8?B?RmVlZGluZyB0aW1lcw==?=

Cats eat twice a day.
Dogs eat once.
`)

	assert.Equal(t, "From: Ann <ann@example.com>\nTo: zoo@example.com\n"+
		"Date: Mon, 2 Mar 2026 09:30:00 +0000\nSubject: Feeding times\n\n"+
		"Cats eat twice a day.\nDogs eat once.", block.Text)

	src, ok := block.Metadata[domain.MetaSource].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/uploads/zoo/mail.eml", src[domain.MetaFilePath])
	assert.Equal(t, "eml", src["format"])
	assert.Equal(t, "Feeding times", src["title"])
	assert.Equal(t, "Ann <ann@example.com>", src["from"])
	assert.Equal(t, "zoo@example.com", src["to"])
}

func TestNormalise_MultipartPrefersPlainText(t *testing.T) {
	block := normalise(t, `Subject: Hello
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/html

<p>HTML version</p>
--inner
Content-Type: text/plain
Content-Transfer-Encoding: quoted-printable

Plain version with a soft=
 break
--inner--
--outer
Content-Type: text/plain
Content-Disposition: attachment; filename="ignored.txt"

attachment text
--outer--
`)

	assert.Equal(t, "Subject: Hello\n\nPlain version with a soft break", block.Text)
}

func TestNormalise_HTMLOnly(t *testing.T) {
	block := normalise(t, `Subject: News
Content-Type: multipart/alternative; boundary="b"

--b
Content-Type: text/html; charset=utf-8

<html><body><h1>Zoo news</h1><p>New penguins &amp; seals.</p></body></html>
--b--
`)

	assert.Equal(t, "Subject: News\n\nZoo news\nNew penguins & seals.", block.Text)
}

func TestNormalise_Base64Body(t *testing.T) {
	block := normalise(t, `Subject: Encoded
Content-Type: text/plain
Content-Transfer-Encoding: base64

RmlzaCBzd2ltIGluIGNp
cmNsZXMu
`)

	assert.Equal(t, "Subject: Encoded\n\nFish swim in circles.", block.Text)
}

func TestNormalise_InvalidMessage(t *testing.T) {
	blocks, err := New().Normalise(context.Background(), &domain.RawDocument{
		Path:    "bad.eml",
		Content: []byte("no headers here"),
	})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Nil(t, blocks)
}

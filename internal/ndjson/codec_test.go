package ndjson

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := discardLogger()

	enc := NewEncoder(&buf, logger)
	require.NoError(t, enc.Encode(record{Role: "caller", Text: "remind me tomorrow"}))
	require.NoError(t, enc.Encode(record{Role: "assistant", Text: "Confirm?"}))

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dec := NewDecoder(&buf, logger)
	var first, second record
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "caller", first.Role)
	assert.Equal(t, "Confirm?", second.Text)

	var extra record
	assert.Equal(t, io.EOF, dec.Decode(&extra))
	assert.Equal(t, 2, dec.Line())
}

func TestDecoderSkipsEmptyLines(t *testing.T) {
	input := "\n{\"role\":\"caller\",\"text\":\"a\"}\n\n\n{\"role\":\"caller\",\"text\":\"b\"}\n"
	recs, err := ReadAll[record](strings.NewReader(input), discardLogger())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].Text)
}

func TestDecoderToleratesCRLFAndWhitespace(t *testing.T) {
	input := "{\"role\":\"caller\",\"text\":\"a\"}\r\n   \r\n  {\"role\":\"assistant\",\"text\":\"b\"}  \r\n"
	recs, err := ReadAll[record](strings.NewReader(input), discardLogger())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "assistant", recs[1].Role)
}

func TestDecoderReportsLineOnBadJSON(t *testing.T) {
	input := "{\"role\":\"caller\"}\n{not json}\n"
	_, err := ReadAll[record](strings.NewReader(input), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestEncoderRejectsOversizedRecord(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, discardLogger())

	err := enc.Encode(record{Text: strings.Repeat("x", MaxLineSize+1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
	assert.Zero(t, buf.Len())
}

func TestReadAllEmptyInput(t *testing.T) {
	recs, err := ReadAll[record](strings.NewReader(""), discardLogger())
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs)
}

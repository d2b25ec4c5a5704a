package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(s string) *textproto.Reader {
	return textproto.NewReader(bufio.NewReader(strings.NewReader(s)))
}

func TestFramingMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	msg1 := []byte(`{"jsonrpc":"2.0","method":"one"}`)
	msg2 := []byte(`{"jsonrpc":"2.0","method":"two"}`)
	require.NoError(t, writeFrame(&buf, msg1))
	require.NoError(t, writeFrame(&buf, msg2))

	r := frames(buf.String())
	got1, err := readFrame(r)
	require.NoError(t, err)
	got2, err := readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, msg1, got1)
	assert.Equal(t, msg2, got2)

	_, err = readFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFramingHeaders(t *testing.T) {
	r := frames("content-length: 2\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n{}")
	got, err := readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))

	_, err = readFrame(frames("Content-Length: 2\r\nContent-Type: application/vscode-jsonrpc; charset=latin1\r\n\r\n{}"))
	assert.ErrorContains(t, err, "charset")
}

func TestFramingRejects(t *testing.T) {
	for name, input := range map[string]string{
		"oversized": "Content-Length: 999999999999\r\n\r\n{}",
		"negative":  "Content-Length: -1\r\n\r\n{}",
		"garbage":   "Content-Length: ten\r\n\r\n{}",
		"truncated": "Content-Length: 10\r\n\r\n{}",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := readFrame(frames(input))
			require.Error(t, err)
			assert.False(t, errors.Is(err, io.EOF))
		})
	}
	_, err := readFrame(frames("X-Other: 1\r\n\r\n{}"))
	assert.ErrorIs(t, err, errNoContentLength)
}

func TestConnReadRecoversFromBadPayload(t *testing.T) {
	var in bytes.Buffer
	require.NoError(t, writeFrame(&in, []byte(`{not json`)))
	require.NoError(t, writeFrame(&in, []byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`)))
	require.NoError(t, writeFrame(&in, []byte(`{"jsonrpc":"2.0","id":"a","method":"ok"}`)))
	c := newConn(&in, io.Discard)

	msg, err := c.read()
	var rerr *rpcError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, codeParseError, rerr.Code)
	assert.Nil(t, msg)

	msg, err = c.read()
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, codeInvalidRequest, rerr.Code)
	require.NotNil(t, msg)
	assert.Equal(t, json.RawMessage("1"), msg.ID)

	msg, err = c.read()
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Method)
}

func TestRequestKey(t *testing.T) {
	seven, ok := requestKey(json.RawMessage("7"))
	require.True(t, ok)
	sevenFloat, _ := requestKey(json.RawMessage("7.0"))
	sevenString, _ := requestKey(json.RawMessage(`"7"`))
	assert.Equal(t, seven, sevenFloat)
	assert.NotEqual(t, seven, sevenString)

	for _, id := range []string{"", "null", "{}", "[1]"} {
		_, ok := requestKey(json.RawMessage(id))
		assert.False(t, ok, id)
	}
}

func TestInflightCancel(t *testing.T) {
	f := newInflight()
	ctx, done := f.begin(context.Background(), json.RawMessage("3"))
	other, otherDone := f.begin(context.Background(), json.RawMessage(`"3"`))
	defer otherDone()

	assert.False(t, f.cancel(json.RawMessage("4")))
	assert.True(t, f.cancel(json.RawMessage("3.0")))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NoError(t, other.Err())

	done()
	assert.False(t, f.cancel(json.RawMessage("3")), "finished requests are forgotten")
}

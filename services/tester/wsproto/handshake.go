// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package wsproto

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strings"
)

// websocketGUID is the fixed key-derivation string from RFC 6455
// section 1.3.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ErrMissingKey is returned when the upgrade request carries no
// Sec-WebSocket-Key header. The connection is closed without a
// response in that case.
var ErrMissingKey = errors.New("wsproto: upgrade request has no Sec-WebSocket-Key")

// AcceptKey derives the Sec-WebSocket-Accept value for a client key:
// base64 of the SHA-1 over the key concatenated with the protocol GUID.
func AcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + websocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ReadUpgrade consumes the client's HTTP upgrade request from r and
// returns the Sec-WebSocket-Key value.
//
// The request line and headers are read up to the terminating blank
// line. Header names are matched case-insensitively. Only the key
// header matters here; Origin checks and subprotocol negotiation are
// intentionally absent, the server trusts its local network.
func ReadUpgrade(r *bufio.Reader) (string, error) {
	tp := textproto.NewReader(r)
	requestLine, err := tp.ReadLine()
	if err != nil {
		return "", fmt.Errorf("wsproto: reading request line: %w", err)
	}
	if !strings.HasPrefix(requestLine, "GET ") {
		return "", fmt.Errorf("wsproto: unexpected request line %q", requestLine)
	}
	headers, err := tp.ReadMIMEHeader()
	if err != nil {
		return "", fmt.Errorf("wsproto: reading upgrade headers: %w", err)
	}
	key := strings.TrimSpace(headers.Get("Sec-WebSocket-Key"))
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}

// WriteUpgradeResponse writes the 101 Switching Protocols response that
// completes the handshake. serverHeader goes out as the Server header,
// e.g. "HardwareTester/1.0.0".
func WriteUpgradeResponse(w io.Writer, clientKey, serverHeader string) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString("Sec-WebSocket-Accept: " + AcceptKey(clientKey) + "\r\n")
	b.WriteString("Server: " + serverHeader + "\r\n")
	b.WriteString("\r\n")
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("wsproto: writing upgrade response: %w", err)
	}
	return nil
}

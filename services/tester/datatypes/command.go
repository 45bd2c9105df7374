// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the command envelope and response shapes
// for the hardware tester protocol.
//
// Every client frame carries one JSON command object; every server
// frame carries one JSON response object. The field names here are the
// wire contract and must not change without a protocol version bump.
package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Server identity, sent in the handshake Server header, the welcome
// message, and the info response.
const (
	ServerName    = "HardwareTester"
	ServerVersion = "1.0.0"
)

// Actions accepted on the wire.
const (
	ActionList    = "list"
	ActionExecute = "execute"
	ActionCancel  = "cancel"
	ActionInfo    = "info"
)

// Command is the envelope for every client request.
//
// Description:
//
//	A command selects one of the four protocol operations. "execute"
//	additionally names a registered experiment and may carry numeric
//	parameters. Unknown keys in the JSON object are ignored.
//
// Fields:
//   - Action: one of list, execute, cancel, info
//   - Function: required for execute, ignored otherwise
//   - Params: optional numeric parameters, clamped per experiment
//
// Example:
//
//	{"action":"execute","function":"list_vs_array",
//	 "params":{"param1":1,"param2":4,"param3":1}}
type Command struct {
	Action   string `json:"action" validate:"required,oneof=list execute cancel info"`
	Function string `json:"function,omitempty" validate:"omitempty,max=128"`
	Params   Params `json:"params,omitempty"`
}

var validate = validator.New()

// ParseCommand decodes and validates one raw frame payload.
//
// A payload that is not a JSON object, or whose action field is not
// one of the four known operations, fails validation. The caller
// answers such frames with an "Unknown command" error that echoes the
// raw text.
func ParseCommand(raw string) (Command, error) {
	var cmd Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return Command{}, fmt.Errorf("datatypes: decoding command: %w", err)
	}
	if err := validate.Struct(&cmd); err != nil {
		return Command{}, fmt.Errorf("datatypes: validating command: %w", err)
	}
	return cmd, nil
}

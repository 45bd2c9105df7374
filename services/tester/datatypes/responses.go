// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Welcome is pushed to every client immediately after the handshake.
type Welcome struct {
	Type       string `json:"type"`
	ServerName string `json:"serverName"`
	Version    string `json:"version"`
	Message    string `json:"message"`
}

// NewWelcome builds the canonical welcome message.
func NewWelcome() Welcome {
	return Welcome{
		Type:       "welcome",
		ServerName: ServerName,
		Version:    ServerVersion,
		Message:    "Connected to Hardware Tester Server",
	}
}

// ServerInfo answers the info action with static server identity.
type ServerInfo struct {
	ServerName string `json:"serverName"`
	Version    string `json:"version"`
	Port       int    `json:"port"`
}

// FunctionInfo describes one registered experiment in the list reply.
type FunctionInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FunctionList answers the list action. Order matches registration
// order.
type FunctionList struct {
	Functions []FunctionInfo `json:"functions"`
}

// CommandError is the error shape for rejected commands. Only the
// fields relevant to the specific failure are populated:
//
//	{"error":"Unknown command","command":"<raw frame text>"}
//	{"error":"Function name not specified"}
//	{"error":"Function not found","functionName":"bogus"}
type CommandError struct {
	Error        string `json:"error"`
	Command      string `json:"command,omitempty"`
	FunctionName string `json:"functionName,omitempty"`
}

// Error message texts shared between the router and the experiments.
const (
	ErrTextUnknownCommand  = "Unknown command"
	ErrTextNoFunctionName  = "Function name not specified"
	ErrTextFunctionMissing = "Function not found"
	ErrTextAllocFailed     = "Failed to allocate memory"
	ErrTextInternalFault   = "Experiment failed"
	ErrTextCancelled       = "Experiment cancelled"
)

// AllocError reports a failed scratch buffer allocation. The
// connection stays open; only the experiment is abandoned.
type AllocError struct {
	Error         string `json:"error"`
	RequestedSize int    `json:"requestedSize,omitempty"`
}

// NewAllocError builds the allocation failure response for a request
// of size bytes.
func NewAllocError(size int) AllocError {
	return AllocError{Error: ErrTextAllocFailed, RequestedSize: size}
}

// StatusMessage acknowledges cancel requests.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Cancelling acknowledges a cancel action. The same shape answers
// cancels that land mid-experiment and cancels that arrive idle; the
// aborted experiment's own cancelled result follows separately once
// its sweep loop unwinds.
func Cancelling() StatusMessage {
	return StatusMessage{Status: "cancelling", Message: "Cancel request received"}
}

// CancelledResult replaces the experiment result when the run was
// aborted. Cancellation is an expected outcome rather than a fault,
// but the shape keeps the error key for client compatibility.
type CancelledResult struct {
	Error     string `json:"error"`
	Cancelled bool   `json:"cancelled"`
}

// NewCancelledResult builds the abort response.
func NewCancelledResult() CancelledResult {
	return CancelledResult{Error: ErrTextCancelled, Cancelled: true}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build ignore

// Smoke test script for a running hardware tester server.
// Run with: go run scripts/smoke.go [-addr localhost:8765] [-run list_vs_array]
//
// Connects, prints the experiment catalog, runs one experiment with
// small parameters, and prints the conclusions. Useful for checking a
// deployment without opening a notebook.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	addr := flag.String("addr", "localhost:8765", "server address")
	run := flag.String("run", "list_vs_array", "experiment to run (empty to skip)")
	flag.Parse()

	url := "ws://" + *addr + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("dialing %s: %v", url, err)
	}
	defer conn.Close()

	welcome := read(conn, 5*time.Second)
	fmt.Printf("connected: %s %s\n", welcome["serverName"], welcome["version"])

	send(conn, map[string]any{"action": "list"})
	list := read(conn, 5*time.Second)
	fmt.Println("experiments:")
	if fns, ok := list["functions"].([]any); ok {
		for _, f := range fns {
			fn := f.(map[string]any)
			fmt.Printf("  %-26s %s\n", fn["name"], fn["description"])
		}
	}

	if *run == "" {
		return
	}

	fmt.Printf("running %s...\n", *run)
	send(conn, map[string]any{
		"action":   "execute",
		"function": *run,
		"params":   map[string]any{"param1": 1, "param2": 4, "param3": 1},
	})
	result := read(conn, 5*time.Minute)
	if errText, ok := result["error"]; ok {
		log.Fatalf("experiment failed: %v", errText)
	}

	pretty, _ := json.MarshalIndent(result["conclusions"], "", "  ")
	fmt.Printf("conclusions:\n%s\n", pretty)
}

func send(conn *websocket.Conn, cmd map[string]any) {
	if err := conn.WriteJSON(cmd); err != nil {
		log.Fatalf("sending command: %v", err)
	}
}

func read(conn *websocket.Conn, timeout time.Duration) map[string]any {
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Fatalf("reading frame: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Fatalf("decoding %q: %v", data, err)
	}
	return msg
}

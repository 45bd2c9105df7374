// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/AleutianAI/hwtester/services/tester/datatypes"
)

// cancelPollInterval bounds each read poll while an experiment runs,
// so the listener notices the routine finishing within one interval.
const cancelPollInterval = 100 * time.Millisecond

// cancelListener watches the connection for a cancel command while an
// experiment runs. It owns the read side of the connection for its
// lifetime; stop() joins it before the session reads again.
type cancelListener struct {
	session *Session
	cancel  func()
	done    chan struct{}

	// connLost is written before done is closed and read only after
	// stop observes the close, which orders the accesses.
	connLost bool
}

func newCancelListener(s *Session, cancel func()) *cancelListener {
	return &cancelListener{
		session: s,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// run polls for frames until the experiment context ends. A cancel
// command cancels the context first and acks second, so the routine
// starts unwinding even if the ack write blocks. Any other command
// arriving mid-experiment is dropped.
func (l *cancelListener) run(ctx context.Context) {
	defer close(l.done)
	for ctx.Err() == nil {
		raw, err := l.session.conn.PollMessage(cancelPollInterval)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			// Read failure mid-experiment: the client is gone, so
			// stop the sweep and let the session shut down.
			l.session.log.Info("connection lost while experiment running", "error", err)
			l.connLost = true
			l.cancel()
			return
		}

		cmd, perr := datatypes.ParseCommand(raw)
		if perr != nil || cmd.Action != datatypes.ActionCancel {
			l.session.log.Debug("dropping frame received mid-experiment", "frame", raw)
			continue
		}

		l.session.log.Info("cancel requested")
		l.cancel()
		_ = l.session.sendJSON(datatypes.Cancelling())
		return
	}
}

// stop signals the listener and waits for it to exit. It reports
// whether the connection was lost while the listener held it.
func (l *cancelListener) stop() bool {
	l.cancel()
	<-l.done
	return l.connLost
}

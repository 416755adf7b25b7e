// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

/*
Package scheduler posts room leaderboards to each session's leaderboard
webhook, one room per tick.

# Rotation

The Scheduler holds an ordered list of room tasks and a cursor. Each tick
processes the task at the cursor and advances it. When the cursor runs off
the end the list is rebuilt from the session store, so configuration changes
are picked up once per full cycle and every task is visited at most once per
cycle. A task whose mirror context has gone away is skipped without
rebuilding.

# Gate

The Gate polls the mirror pool. While the pool holds at least one context it
keeps the scheduler started and ticking; when the pool empties it stops the
scheduler and clears the rotation, so the next activation starts from a
fresh list.

# Cleanup

Cleaner is a small supervised job that prunes the room status log.
*/
package scheduler

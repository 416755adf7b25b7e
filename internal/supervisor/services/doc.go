// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

/*
Package services adapts components without a native Serve method to the
suture.Service interface.

  - HTTPServerService runs an *http.Server and shuts it down gracefully
    when its context is canceled.
  - StoreGCService compacts the BadgerDB value log on an interval.

Components that already implement Serve(ctx) error (the mirror pool, the
correlator, the dedup cache, the notification dispatcher and the scheduler
gate) are added to the tree directly.
*/
package services

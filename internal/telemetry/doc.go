// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides in-process usage statistics for the ask_* tools.
//
// A Tracker is fed every executed call by the dispatcher and reports
// per-tool call counts, failures and latency. Nothing is persisted and
// prompt or reply text is never kept, only its length.
//
// # Usage
//
//	tracker := telemetry.NewTracker()
//	d := dispatch.New(catalog, store, client, dispatch.WithRecorder(tracker))
//	...
//	summary := tracker.Summary()
//	fmt.Printf("%d calls, %d failed\n", summary.Calls, summary.Errors)
package telemetry

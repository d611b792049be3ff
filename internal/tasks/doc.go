// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks runs work in the background and collects it later.
//
// A Task starts executing the moment it is created; Await is the only call
// that blocks. When Await gives up, the task is canceled and whatever it
// eventually produces is discarded.
//
// # Key Types
//
//   - Task: started-immediately unit of work with a typed result
//   - Status: Queued, Running, Complete, Failed, Canceled
//   - Tracker: numbered set of outstanding items for interactive hosts
//
// # Usage
//
//	task := tasks.Start(ctx, "chat with openai", func(ctx context.Context) (string, error) {
//	    return ask(ctx)
//	})
//	// ... do other work ...
//	text, err := task.Await(30 * time.Second)
package tasks

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history keeps one ordered conversation per caller.
//
// Callers are host-owned handles. The Manager only holds weak references to
// them, so a caller that the host drops is forgotten once the garbage
// collector reclaims it; Forget does the same thing eagerly.
//
// Asynchronous rounds reserve the assistant's place in the conversation when
// they start. Begin appends the user message plus an empty reply slot, and
// the returned Pending fills or drops that slot later. Reads never see an
// empty slot, and replies land in the order their rounds started no matter
// which one resolves first.
//
// # Key Types
//
//   - Caller: identity of one conversation
//   - Manager: weak-keyed map of caller histories
//   - Pending: reserved assistant slot for one round
//
// # Usage
//
//	m := history.NewManager()
//	c := history.NewCaller("agent-7")
//	p, msgs := m.Begin(c, model.NewUserMessage("hi"))
//	reply, err := send(msgs)
//	if err != nil {
//	    p.Abandon()
//	    return err
//	}
//	p.Commit(reply)
package history

// Package qspruntime hosts single-threaded quest interpreter engines behind a
// supervisor that an asynchronous UI can drive.
//
// The interpreter is not reentrant and must be called from one OS thread. Its
// callbacks are synchronous: when a script asks for text input the engine
// call does not return until an answer exists. This module owns that thread,
// serialises every engine call onto it, and turns blocking callbacks into
// published requests whose answers arrive later from any goroutine.
//
// # Architecture Overview
//
//	qspruntime/          Collaborator contracts: Storage, AudioPlayer
//	├── state/           Immutable snapshots and broadcast cells
//	├── protocol/        Outbound requests and the Answer union
//	├── bridge/          One-shot question/answer cells with timeout
//	├── engine/          Dedicated engine thread and task queue
//	├── adapter/         Generic engine adapter over the RawEngine trait
//	├── native/          wazero-hosted engine variants (byte, sonnix, seedharta)
//	├── supervisor/      Lifecycle, counter tick, request routing, settings merge
//	├── resource/        Descriptor table and directory-backed Storage
//	├── settings/        YAML settings file with live reload
//	├── audio/           beep-based AudioPlayer
//	├── errors/          Structured error types and engine diagnostics
//	└── cmd/run/         Terminal shell
//
// # Quick Start
//
//	store := resource.NewLocalStorage()
//	sup, err := supervisor.New(supervisor.Config{
//	    Storage:  store,
//	    Audio:    audio.NewPlayer(store),
//	    Settings: settingsStore.Value(),
//	    Engines:  native.Engines(modules, native.Config{}),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sup.Stop(ctx)
//
//	requests, cancel := sup.Requests().Subscribe(16)
//	defer cancel()
//
//	err = sup.StartGame(ctx, state.GameRef{ID: 1, Title: "Demo", Dir: dir, File: file})
//
//	for req := range requests {
//	    switch r := req.(type) {
//	    case protocol.ShowInput:
//	        sup.AnswerRequest(r.ID, protocol.TextAnswer("Alice"))
//	    }
//	}
//
// # Thread Safety
//
// Supervisor methods are safe for concurrent use and never block on the
// engine. Only the engine thread calls into the interpreter; blocking
// callbacks stall that thread, never the caller. Snapshots read from
// state.Value are immutable.
package qspruntime

// Package dbadapter implements the worker-thread database adapter from
// spec.md §5: "The database adapter runs on a dedicated worker thread that
// consumes jobs via a bounded MPSC channel; the main thread enqueues either
// blocking jobs (db_run_sync, rare) or fire-and-forget jobs (db_run_async,
// which returns a one-shot receiver the main thread polls during the slow
// tick)." The concrete backend is MongoDB (original_source/src/database/
// mongo.rs is one of the two backends the Rust original supports); an
// in-memory backend is provided for tests and for the out-of-scope
// narrow-interface case described in SPEC_FULL.md.
package dbadapter

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Backend is the minimal persistence surface the worker thread drives.
// Player/account/mission blobs are opaque JSON documents keyed by
// collection + id; the schema itself is out of scope per spec.md §1.
type Backend interface {
	SaveBlob(ctx context.Context, collection, id string, blob []byte) error
	LoadBlob(ctx context.Context, collection, id string) ([]byte, bool, error)
	Close(ctx context.Context) error
}

// Job is one unit of work submitted to the adapter's worker goroutine.
type Job struct {
	Run    func(Backend) (any, error)
	result chan Result
}

// Result is what a Job resolves to, delivered on the one-shot channel
// RunAsync returns.
type Result struct {
	Value any
	Err   error
}

// Adapter owns the backend connection and the bounded job queue. It must be
// started with Run in its own goroutine before any db_run_sync/db_run_async
// call, per spec.md §9 ("one-time-initialized process singletons;
// establish them at startup before any event-loop iteration").
type Adapter struct {
	backend Backend
	jobs    chan Job
	log     zerolog.Logger

	closeOnce sync.Once
}

// NewAdapter builds an Adapter with a bounded queue of size queueSize.
func NewAdapter(backend Backend, queueSize int, log zerolog.Logger) *Adapter {
	return &Adapter{
		backend: backend,
		jobs:    make(chan Job, queueSize),
		log:     log.With().Str("component", "dbadapter").Logger(),
	}
}

// Run drains the job queue until Close is called. Call it in its own
// goroutine; it is the adapter's dedicated worker thread.
func (a *Adapter) Run() {
	for job := range a.jobs {
		value, err := job.Run(a.backend)
		if job.result != nil {
			job.result <- Result{Value: value, Err: err}
			close(job.result)
		} else if err != nil {
			a.log.Warn().Err(err).Msg("fire-and-forget db job failed")
		}
	}
}

// RunAsync enqueues fn and returns immediately with a one-shot channel the
// caller polls later (during the slow tick, per spec.md §4.11). Never
// blocks the caller beyond the bounded-channel send.
func (a *Adapter) RunAsync(fn func(Backend) (any, error)) <-chan Result {
	result := make(chan Result, 1)
	a.jobs <- Job{Run: fn, result: result}
	return result
}

// RunSync enqueues fn and blocks the calling goroutine until it completes.
// cmd/login's REQ_LOGIN handler calls it for the credential and character
// lookups, so that handler blocks the login event loop on the database.
func (a *Adapter) RunSync(fn func(Backend) (any, error)) (any, error) {
	result := <-a.RunAsync(fn)
	return result.Value, result.Err
}

// Close stops accepting new jobs; Run's range loop exits once the queue
// drains. Safe to call more than once.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() { close(a.jobs) })
}

// MarshalBlob is the jsoniter-based encoding used for every persisted
// player/account/mission snapshot before it reaches SaveBlob, mirroring the
// teacher's jsoniter compat alias in main.go.
func MarshalBlob(v any) ([]byte, error) {
	return json.Marshal(v)
}

// UnmarshalBlob decodes a blob previously produced by MarshalBlob into v.
func UnmarshalBlob(blob []byte, v any) error {
	return json.Unmarshal(blob, v)
}

// ErrNotFound is a sentinel a RunSync/RunAsync job can return in place of
// LoadBlob's found=false result, for callers that want a single error
// return. The backends never return it; they report a missing blob through
// LoadBlob's bool.
var ErrNotFound = fmt.Errorf("dbadapter: blob not found")

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"telecrm/internal/device"
	"telecrm/internal/syncq"
)

// RecordingSource resolves a recording reference to a readable stream.
// The agent cannot assume the recorder's file survives, so the upload path
// works from a temporary byte copy.
type RecordingSource interface {
	Fetch(ctx context.Context, ref string) (filename string, r io.ReadCloser, err error)
}

// FileSource reads references that are plain filesystem paths, which is what
// the dialer companion reports for recorder output.
type FileSource struct{}

func (FileSource) Fetch(ctx context.Context, ref string) (string, io.ReadCloser, error) {
	f, err := os.Open(ref)
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}

// SyncHandlers delivers the three sync task kinds. Missing or invalid
// device credentials are permanent: retrying without credentials cannot
// succeed, registration is a separate flow.
type SyncHandlers struct {
	client   *Client
	identity device.Provider
	source   RecordingSource
	log      *slog.Logger
}

func NewSyncHandlers(client *Client, identity device.Provider, source RecordingSource, log *slog.Logger) *SyncHandlers {
	if log == nil {
		log = slog.Default()
	}
	if source == nil {
		source = FileSource{}
	}
	return &SyncHandlers{client: client, identity: identity, source: source, log: log}
}

// RegisterAll wires the handlers into a sync worker.
func (h *SyncHandlers) RegisterAll(w *syncq.Worker) {
	w.Register(syncq.KindCallLogSync, syncq.HandlerFunc(h.HandleCallLogSync))
	w.Register(syncq.KindRecordingUpload, syncq.HandlerFunc(h.HandleRecordingUpload))
	w.Register(syncq.KindOutcomeSync, syncq.HandlerFunc(h.HandleOutcomeSync))
}

func (h *SyncHandlers) HandleCallLogSync(ctx context.Context, t syncq.Task) error {
	var p syncq.CallLogPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("decode call log payload: %v: %w", err, syncq.ErrPermanent)
	}
	creds, err := h.credentials(ctx)
	if err != nil {
		return err
	}
	return h.client.SyncCallLog(ctx, creds, t.CallID, p)
}

func (h *SyncHandlers) HandleOutcomeSync(ctx context.Context, t syncq.Task) error {
	var p syncq.OutcomePayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("decode outcome payload: %v: %w", err, syncq.ErrPermanent)
	}
	creds, err := h.credentials(ctx)
	if err != nil {
		return err
	}
	return h.client.SyncOutcome(ctx, creds, t.CallID, p)
}

func (h *SyncHandlers) HandleRecordingUpload(ctx context.Context, t syncq.Task) error {
	var p syncq.RecordingUploadPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("decode upload payload: %v: %w", err, syncq.ErrPermanent)
	}
	creds, err := h.credentials(ctx)
	if err != nil {
		return err
	}

	name, src, err := h.source.Fetch(ctx, p.RecordingRef)
	if err != nil {
		// A reference that cannot be resolved will not resolve later either.
		return fmt.Errorf("resolve recording %q: %v: %w", p.RecordingRef, err, syncq.ErrPermanent)
	}
	defer src.Close()

	// Work from a temporary byte copy; delete it on every exit path so the
	// cache does not grow across retries.
	tmp, err := os.CreateTemp("", "upload_*.amr")
	if err != nil {
		return fmt.Errorf("create temp copy: %w", err)
	}
	defer func() {
		tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil {
			h.log.Warn("temp recording cleanup failed", "path", tmp.Name(), "err", rmErr)
		}
	}()

	if _, err := io.Copy(tmp, src); err != nil {
		return fmt.Errorf("copy recording: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind temp copy: %w", err)
	}

	return h.client.UploadRecording(ctx, creds, t.CallID, filepath.Base(name), tmp)
}

func (h *SyncHandlers) credentials(ctx context.Context) (device.Credentials, error) {
	creds, err := h.identity.Credentials(ctx)
	if err != nil {
		if errors.Is(err, device.ErrNotRegistered) || errors.Is(err, device.ErrInvalidToken) {
			return device.Credentials{}, fmt.Errorf("%v: %w", err, syncq.ErrPermanent)
		}
		return device.Credentials{}, err
	}
	return creds, nil
}

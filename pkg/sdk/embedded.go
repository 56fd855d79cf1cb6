package sdk

import (
	"context"
	"os"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/internal/vault"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
)

// Embedded runs the engine inside the calling process.
// It implements the ActivityLog interface.
type Embedded struct {
	store *engine.Store
}

// NewEmbedded wraps an open engine store.
func NewEmbedded(store *engine.Store) *Embedded {
	return &Embedded{store: store}
}

// OpenEmbedded opens the file store in dataDir the way the daemon does,
// decrypting and encrypting logs with ACTIVITY_MASTER_KEY when it is set.
func OpenEmbedded(ctx context.Context, dataDir string) (*Embedded, error) {
	masterKey, err := vault.MasterKey(os.Getenv("ACTIVITY_MASTER_KEY"))
	if err != nil {
		return nil, err
	}
	var opts []engine.FileOption
	if masterKey != nil {
		opts = append(opts, engine.WithMasterKey(masterKey))
	}
	backend, err := engine.NewFileBackend(dataDir, opts...)
	if err != nil {
		return nil, err
	}
	store, err := engine.Open(ctx, backend, 0)
	if err != nil {
		return nil, err
	}
	return NewEmbedded(store), nil
}

func (e *Embedded) Append(ctx context.Context, actor string, ev schema.EventRecord) error {
	return e.store.AppendEvent(ctx, actor, ev)
}

func (e *Embedded) UpdateStatus(ctx context.Context, actor, id string, status schema.Status, tx *schema.TxUpdate) (schema.EventRecord, error) {
	return e.store.UpdateEventStatus(ctx, actor, id, status, tx)
}

func (e *Embedded) List(ctx context.Context, actor string, opts ListOptions) (Page, error) {
	return e.store.ListEvents(ctx, actor, opts)
}

func (e *Embedded) Get(ctx context.Context, actor, id string) (*schema.EventRecord, error) {
	return e.store.GetEvent(ctx, actor, id)
}

func (e *Embedded) Filter(ctx context.Context, actor, expr string, limit int) ([]schema.EventRecord, error) {
	return e.store.FilterEvents(ctx, actor, expr, limit)
}

func (e *Embedded) Retention(ctx context.Context) (int, error) {
	return e.store.Retention(ctx)
}

func (e *Embedded) Close() error {
	return e.store.Close()
}

// Package repotest provides in-memory repositories for tests.
package repotest

import (
	"context"
	"encoding/json"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuanvumaihuynh/product-catalog/internal/model"
	"github.com/tuanvumaihuynh/product-catalog/internal/repository"
	"github.com/tuanvumaihuynh/product-catalog/internal/storage/db"
)

// DB satisfies db.DB for code that only needs WithTx. Query methods panic.
// Repositories that support it undo their writes when the transaction
// function fails or panics.
type DB struct {
	db.DB
}

func (d DB) WithTx(_ context.Context, txFunc func(db.DB) error) (err error) {
	tx := &Tx{}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return txFunc(tx)
}

// Tx is the transaction handed to txFunc by DB.WithTx.
type Tx struct {
	db.DB
	mu   sync.Mutex
	undo []func()
}

func (t *Tx) WithTx(_ context.Context, txFunc func(db.DB) error) error {
	return txFunc(t)
}

func (t *Tx) onRollback(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undo = append(t.undo, f)
}

func (t *Tx) rollback() {
	t.mu.Lock()
	undo := t.undo
	t.undo = nil
	t.mu.Unlock()

	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

var _ repository.ProductRepository = (*ProductRepository)(nil)

// ProductRepository keeps products in memory. Each method holds the lock for
// its whole body, matching the single-statement atomicity of the postgres one.
type ProductRepository struct {
	mu       sync.Mutex
	products map[uuid.UUID]model.Product
	writes   int

	// Err, when set, is returned by every method.
	Err error
}

func NewProductRepository(products ...model.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[uuid.UUID]model.Product)}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *ProductRepository) WithDB(db.DB) repository.ProductRepository {
	return r
}

// Writes returns how many successful mutations the repository has applied.
func (r *ProductRepository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func (r *ProductRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.products)
}

func (r *ProductRepository) CreateProduct(_ context.Context, product model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}

	for _, p := range r.products {
		if p.ProductCode == product.ProductCode {
			return repository.ErrProductCodeConflict
		}
	}
	if product.AvailableStock > math.MaxInt32 {
		return repository.ErrStockOutOfRange
	}
	r.products[product.ID] = product
	r.writes++
	return nil
}

func (r *ProductRepository) GetProductByID(_ context.Context, id uuid.UUID) (model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return model.Product{}, r.Err
	}

	p, ok := r.products[id]
	if !ok {
		return model.Product{}, repository.ErrProductNotFound
	}
	return p, nil
}

func (r *ProductRepository) GetProductByCode(_ context.Context, code string) (model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return model.Product{}, r.Err
	}

	for _, p := range r.products {
		if p.ProductCode == code {
			return p, nil
		}
	}
	return model.Product{}, repository.ErrProductNotFound
}

func (r *ProductRepository) UpdateProductFields(_ context.Context, id uuid.UUID, patch model.ProductPatch) (model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return model.Product{}, r.Err
	}

	p, ok := r.products[id]
	if !ok {
		return model.Product{}, repository.ErrProductNotFound
	}
	if patch.IsEmpty() {
		return p, nil
	}

	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.ShortDescription != nil {
		p.ShortDescription = *patch.ShortDescription
	}
	if patch.ItemPrice != nil {
		p.ItemPrice = *patch.ItemPrice
	}
	if patch.AvailableStock != nil {
		if *patch.AvailableStock > math.MaxInt32 {
			return model.Product{}, repository.ErrStockOutOfRange
		}
		p.AvailableStock = *patch.AvailableStock
	}
	if patch.SellerID != nil {
		p.SellerID = *patch.SellerID
	}
	p.UpdatedAt = time.Now()

	r.products[id] = p
	r.writes++
	return p, nil
}

func (r *ProductRepository) AddProductStock(_ context.Context, id uuid.UUID, delta int) (model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return model.Product{}, r.Err
	}

	p, ok := r.products[id]
	if !ok {
		return model.Product{}, repository.ErrProductNotFound
	}
	if next := p.AvailableStock + delta; next > math.MaxInt32 || next < math.MinInt32 {
		return model.Product{}, repository.ErrStockOutOfRange
	}
	p.AvailableStock += delta
	p.UpdatedAt = time.Now()

	r.products[id] = p
	r.writes++
	return p, nil
}

func (r *ProductRepository) ListProductsPage(_ context.Context, params repository.ListProductsPageParams) (repository.ListProductsPageResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return repository.ListProductsPageResult{}, r.Err
	}

	all := make([]model.Product, 0, len(r.products))
	for _, p := range r.products {
		all = append(all, p)
	}
	slices.SortFunc(all, func(a, b model.Product) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})

	start := min(params.Skip, len(all))
	end := min(start+params.Take, len(all))

	return repository.ListProductsPageResult{
		Items: all[start:end],
		Total: int64(len(all)),
	}, nil
}

var _ repository.OutboxMsgRepository = (*OutboxMsgRepository)(nil)

type outboxMsg struct {
	id        uuid.UUID
	params    repository.CreateOutboxMsgParams
	processed bool
	err       *string
}

// OutboxMsgRepository records outbox messages in memory.
type OutboxMsgRepository struct {
	mu   sync.Mutex
	msgs []*outboxMsg
}

func NewOutboxMsgRepository() *OutboxMsgRepository {
	return &OutboxMsgRepository{}
}

func (r *OutboxMsgRepository) WithDB(db.DB) repository.OutboxMsgRepository {
	return r
}

func (r *OutboxMsgRepository) CreateOutboxMsg(_ context.Context, params repository.CreateOutboxMsgParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, &outboxMsg{id: uuid.New(), params: params})
	return nil
}

func (r *OutboxMsgRepository) ListUnprocessedOutboxMsgs(_ context.Context, params repository.ListUnprocessedOutboxMsgsParams) ([]repository.ListUnprocessedOutboxMsgsResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []repository.ListUnprocessedOutboxMsgsResult
	for _, m := range r.msgs {
		if m.processed {
			continue
		}
		if len(out) == int(params.BatchSize) {
			break
		}
		out = append(out, repository.ListUnprocessedOutboxMsgsResult{
			ID:           m.id,
			Topic:        m.params.Topic,
			Headers:      m.params.Headers,
			Payload:      m.params.Payload,
			PartitionKey: m.params.PartitionKey,
		})
	}
	return out, nil
}

func (r *OutboxMsgRepository) BulkUpdateOutboxMsgs(_ context.Context, params repository.BulkUpdateOutboxMsgsParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range params.Items {
		for _, m := range r.msgs {
			if m.id == item.ID {
				m.processed = true
				m.err = item.Error
			}
		}
	}
	return nil
}

// Messages returns the recorded payloads for topic.
func (r *OutboxMsgRepository) Messages(topic string) []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []json.RawMessage
	for _, m := range r.msgs {
		if m.params.Topic == topic {
			out = append(out, m.params.Payload)
		}
	}
	return out
}

// Unprocessed counts messages not yet marked by BulkUpdateOutboxMsgs.
func (r *OutboxMsgRepository) Unprocessed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, m := range r.msgs {
		if !m.processed {
			n++
		}
	}
	return n
}

// Failed counts messages marked with a relay error.
func (r *OutboxMsgRepository) Failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, m := range r.msgs {
		if m.processed && m.err != nil {
			n++
		}
	}
	return n
}

var _ repository.ProcessedEventRepository = (*ProcessedEventRepository)(nil)

// ProcessedEventRepository is an in-memory dedup ledger. Marks made inside a
// DB.WithTx transaction are undone when it rolls back.
type ProcessedEventRepository struct {
	mu    *sync.Mutex
	marks map[string]time.Time
	tx    *Tx
}

func NewProcessedEventRepository() *ProcessedEventRepository {
	return &ProcessedEventRepository{
		mu:    &sync.Mutex{},
		marks: make(map[string]time.Time),
	}
}

func (r *ProcessedEventRepository) WithDB(d db.DB) repository.ProcessedEventRepository {
	tx, _ := d.(*Tx)
	return &ProcessedEventRepository{mu: r.mu, marks: r.marks, tx: tx}
}

func (r *ProcessedEventRepository) MarkEventProcessed(_ context.Context, params repository.MarkEventProcessedParams) (bool, error) {
	key := params.Topic + "/" + params.EventID
	now := time.Now()

	r.mu.Lock()
	prev, had := r.marks[key]
	if had && now.Sub(prev) < params.TTL {
		r.mu.Unlock()
		return false, nil
	}
	r.marks[key] = now
	r.mu.Unlock()

	if r.tx != nil {
		r.tx.onRollback(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if had {
				r.marks[key] = prev
			} else {
				delete(r.marks, key)
			}
		})
	}

	return true, nil
}

// Has reports whether a mark exists for the event.
func (r *ProcessedEventRepository) Has(topic, eventID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.marks[topic+"/"+eventID]
	return ok
}

package provider

import (
	"context"
	"fmt"

	"github.com/conduit-lang/taskprovider/internal/contract"
	"github.com/conduit-lang/taskprovider/internal/uri"
)

// target is a classified identifier bound to its collection
type target struct {
	kind       MatchKind
	collection Collection
	key        int64
}

// resolve classifies id and rejects shapes the operation does not accept
func (p *Provider) resolve(op string, id uri.Identifier, allowItem bool) (target, error) {
	kind, code := p.Classify(id)
	switch {
	case kind == KindNone, kind == KindItem && !allowItem:
		return target{}, &UnrecognizedIdentifierError{Op: op, URI: id}
	}

	t := target{kind: kind, collection: p.routes[code].collection}
	if kind == KindItem {
		key, ok := id.Key()
		if !ok {
			return target{}, &UnrecognizedIdentifierError{Op: op, URI: id, Reason: "key out of range"}
		}
		t.key = key
	}
	return t, nil
}

// constrain narrows sel to the addressed row for item identifiers
func (t target) constrain(sel contract.Selection) contract.Selection {
	if t.kind != KindItem {
		return sel
	}
	return sel.WithCondition(contract.TaskEntry.ID, t.key)
}

// Insert creates a row in the collection addressed by id and returns the
// identifier of the new row. Only collection identifiers are accepted.
func (p *Provider) Insert(ctx context.Context, id uri.Identifier, values contract.Values) (uri.Identifier, error) {
	const op = "insert"

	t, err := p.resolve(op, id, false)
	if err != nil {
		return uri.Identifier{}, err
	}

	s, err := p.storeFor(op)
	if err != nil {
		return uri.Identifier{}, err
	}

	key, err := s.Insert(ctx, t.collection.Table, values)
	if err != nil {
		return uri.Identifier{}, &WriteFailedError{Op: op, URI: id, Err: err}
	}
	if key <= 0 {
		return uri.Identifier{}, &WriteFailedError{Op: op, URI: id}
	}

	created := p.CollectionURI(t.collection.Path).WithAppendedKey(key)
	p.notifier.NotifyChange(id)

	return created, nil
}

// BulkInsert creates every row in the collection addressed by id and returns
// the number inserted. Observers are notified once.
func (p *Provider) BulkInsert(ctx context.Context, id uri.Identifier, rows []contract.Values) (int, error) {
	const op = "bulk insert"

	t, err := p.resolve(op, id, false)
	if err != nil {
		return 0, err
	}

	s, err := p.storeFor(op)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var inserted int
	if bulk, ok := s.(BulkInserter); ok {
		inserted, err = bulk.BulkInsert(ctx, t.collection.Table, rows)
		if err != nil {
			return 0, &WriteFailedError{Op: op, URI: id, Err: err}
		}
	} else {
		for i, values := range rows {
			key, err := s.Insert(ctx, t.collection.Table, values)
			if err == nil && key <= 0 {
				err = fmt.Errorf("store returned key %d", key)
			}
			if err != nil {
				// rows already written stay written without a transactional store
				if inserted > 0 {
					p.notifier.NotifyChange(id)
				}
				return inserted, &WriteFailedError{Op: op, URI: id, Err: fmt.Errorf("row %d: %w", i, err)}
			}
			inserted++
		}
	}

	if inserted > 0 {
		p.notifier.NotifyChange(id)
	}
	return inserted, nil
}

// Query returns the rows addressed by id. An item identifier constrains the
// selection to that row.
func (p *Provider) Query(ctx context.Context, id uri.Identifier, sel contract.Selection) ([]contract.Row, error) {
	const op = "query"

	t, err := p.resolve(op, id, true)
	if err != nil {
		return nil, err
	}

	s, err := p.storeFor(op)
	if err != nil {
		return nil, err
	}
	q, ok := s.(Querier)
	if !ok {
		return nil, &NotImplementedError{Op: op}
	}

	return q.Query(ctx, t.collection.Table, t.constrain(sel))
}

// Update sets values on the rows addressed by id and returns the number of
// rows changed. Observers are notified only when a row changed.
func (p *Provider) Update(ctx context.Context, id uri.Identifier, values contract.Values, sel contract.Selection) (int64, error) {
	const op = "update"

	t, err := p.resolve(op, id, true)
	if err != nil {
		return 0, err
	}

	s, err := p.storeFor(op)
	if err != nil {
		return 0, err
	}
	u, ok := s.(Updater)
	if !ok {
		return 0, &NotImplementedError{Op: op}
	}

	n, err := u.Update(ctx, t.collection.Table, values, t.constrain(sel))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.notifier.NotifyChange(id)
	}
	return n, nil
}

// Delete removes the rows addressed by id and returns the number removed.
// Observers are notified only when a row was removed.
func (p *Provider) Delete(ctx context.Context, id uri.Identifier, sel contract.Selection) (int64, error) {
	const op = "delete"

	t, err := p.resolve(op, id, true)
	if err != nil {
		return 0, err
	}

	s, err := p.storeFor(op)
	if err != nil {
		return 0, err
	}
	d, ok := s.(Deleter)
	if !ok {
		return 0, &NotImplementedError{Op: op}
	}

	n, err := d.Delete(ctx, t.collection.Table, t.constrain(sel))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.notifier.NotifyChange(id)
	}
	return n, nil
}

// GetType returns the content type of the resource addressed by id
func (p *Provider) GetType(id uri.Identifier) (string, error) {
	const op = "get type"

	t, err := p.resolve(op, id, true)
	if err != nil {
		return "", err
	}
	if _, err := p.storeFor(op); err != nil {
		return "", err
	}

	shape := "dir"
	if t.kind == KindItem {
		shape = "item"
	}
	return fmt.Sprintf("vnd.%s.%s/%s", p.authority, shape, t.collection.Path), nil
}

package core

import (
	"context"
	"iter"

	"doccore/pkg/domain"
)

// Resolver materializes a candidate document, normally through an IdentityMap.
type Resolver[T any] func(doc domain.Document) (*T, error)

// First resolves the first candidate of an ordered, filtered sequence.
// It fails with domain.ErrNoMatch when the sequence is empty. Further
// candidates are neither required to be unique nor pulled from the source.
func First[T any](ctx context.Context, candidates iter.Seq2[domain.Document, error], resolve Resolver[T]) (*T, error) {
	doc, found, err := firstCandidate(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNoMatch
	}
	return resolve(doc)
}

// FirstOrDefault is First with a nil result instead of an error for an
// empty sequence.
func FirstOrDefault[T any](ctx context.Context, candidates iter.Seq2[domain.Document, error], resolve Resolver[T]) (*T, error) {
	doc, found, err := firstCandidate(ctx, candidates)
	if err != nil || !found {
		return nil, err
	}
	return resolve(doc)
}

func firstCandidate(ctx context.Context, candidates iter.Seq2[domain.Document, error]) (domain.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, false, err
	}
	for doc, err := range candidates {
		if err != nil {
			return domain.Document{}, false, err
		}
		return doc, true, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.Document{}, false, err
	}
	return domain.Document{}, false, nil
}

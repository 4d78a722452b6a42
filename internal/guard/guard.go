// Package guard decides whether an acting user may mutate a board, list or
// card. A user may mutate an entity only when it sits under a board they own.
package guard

import (
	"context"
	"database/sql"
	"errors"

	"taskboard/api/internal/store"
)

// ErrDenied means the target exists but is owned by someone else.
var ErrDenied = errors.New("acting user does not own the target")

// Resolver loads entities by id, returning sql.ErrNoRows when one is missing.
type Resolver interface {
	GetBoard(ctx context.Context, id string) (store.Board, error)
	GetList(ctx context.Context, id string) (store.List, error)
	GetCard(ctx context.Context, id string) (store.Card, error)
}

type Guard struct {
	resolver Resolver
}

func New(resolver Resolver) *Guard {
	return &Guard{resolver: resolver}
}

// Owns compares identities exactly. An empty acting user owns nothing.
func Owns(actingUserID, ownerID string) bool {
	return actingUserID != "" && actingUserID == ownerID
}

func (g *Guard) Board(ctx context.Context, actingUserID, boardID string) (store.Board, error) {
	board, err := g.resolver.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, err
	}
	if !Owns(actingUserID, board.OwnerID) {
		return store.Board{}, ErrDenied
	}
	return board, nil
}

func (g *Guard) List(ctx context.Context, actingUserID, listID string) (store.List, error) {
	lists, err := g.Lists(ctx, actingUserID, listID)
	if err != nil {
		return store.List{}, err
	}
	return lists[0], nil
}

// Lists resolves every list and its board before checking ownership of any,
// so a missing list is reported as missing even when another is foreign.
func (g *Guard) Lists(ctx context.Context, actingUserID string, listIDs ...string) ([]store.List, error) {
	lists := make([]store.List, 0, len(listIDs))
	owners := make([]string, 0, len(listIDs))
	for _, id := range listIDs {
		list, ownerID, err := g.listOwner(ctx, id)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
		owners = append(owners, ownerID)
	}
	for _, ownerID := range owners {
		if !Owns(actingUserID, ownerID) {
			return nil, ErrDenied
		}
	}
	return lists, nil
}

func (g *Guard) Card(ctx context.Context, actingUserID, cardID string) (store.Card, error) {
	card, err := g.resolver.GetCard(ctx, cardID)
	if err != nil {
		return store.Card{}, err
	}
	_, ownerID, err := g.listOwner(ctx, card.ListID)
	if err != nil {
		return store.Card{}, err
	}
	if !Owns(actingUserID, ownerID) {
		return store.Card{}, ErrDenied
	}
	return card, nil
}

func (g *Guard) listOwner(ctx context.Context, listID string) (store.List, string, error) {
	list, err := g.resolver.GetList(ctx, listID)
	if err != nil {
		return store.List{}, "", err
	}
	board, err := g.resolver.GetBoard(ctx, list.BoardID)
	if errors.Is(err, sql.ErrNoRows) {
		// A list whose board is gone is unreachable and treated as missing.
		return store.List{}, "", sql.ErrNoRows
	}
	if err != nil {
		return store.List{}, "", err
	}
	return list, board.OwnerID, nil
}

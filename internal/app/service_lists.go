package app

import (
	"context"
	"strings"
	"time"

	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type ReorderCardsInput struct {
	Cards []string `json:"cards" validate:"required,dive,notblank"`
}

// MoveCardsInput carries both full card sequences after a drag between lists.
type MoveCardsInput struct {
	ListOfOriginID          string   `json:"listOfOriginId" validate:"notblank"`
	DestinationListID       string   `json:"destinationListId" validate:"notblank"`
	UpdatedOriginCards      []string `json:"updatedOriginCards" validate:"required,dive,notblank"`
	UpdatedDestinationCards []string `json:"updatedDestinationCards" validate:"required,dive,notblank"`
}

var (
	listEdit = failure{
		notFound: "Could not find list for the provided id.",
		denied:   "You are not allowed to edit this list.",
		failed:   "Something went wrong, could not update list.",
	}
	listDelete = failure{
		notFound: "Could not find list for this id.",
		denied:   "You are not allowed to delete this list.",
		failed:   "Something went wrong, could not delete list.",
	}
)

func (s *Service) GetList(ctx context.Context, listID string) (store.List, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return store.List{}, s.fail(ctx, "list.get", failure{
			notFound: "Could not find list for the provided id.",
			failed:   "Something went wrong, could not find list.",
		}, err)
	}
	return list, nil
}

func (s *Service) ListsByBoard(ctx context.Context, boardID string) ([]store.List, error) {
	f := failure{
		notFound: "Could not find board for the provided id.",
		failed:   "Fetching lists failed, please try again later.",
	}
	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return nil, s.fail(ctx, "list.by_board", f, err)
	}
	lists, err := s.store.ListListsByBoard(ctx, boardID)
	if err != nil {
		return nil, s.fail(ctx, "list.by_board", f, err)
	}
	if len(lists) == 0 {
		return nil, noChildren("Could not find lists for the provided board id.")
	}
	return lists, nil
}

func (s *Service) CreateList(ctx context.Context, session Session, boardID string, input TitleInput) (list store.List, err error) {
	defer s.track("list.create", &err)
	if err := validateInput(input); err != nil {
		return store.List{}, err
	}

	f := failure{
		notFound: "Could not find board for provided id.",
		denied:   "You are not allowed to create lists in this board.",
		failed:   "Creating list failed, please try again.",
	}
	if _, err := s.guard.Board(ctx, session.UserID, boardID); err != nil {
		return store.List{}, s.fail(ctx, "list.create", f, err)
	}

	now := time.Now().UTC()
	list = store.List{
		ID:        util.NewID(""),
		Title:     strings.TrimSpace(input.Title),
		BoardID:   boardID,
		CardIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertList(ctx, list); err != nil {
		return store.List{}, s.fail(ctx, "list.create", f, err)
	}
	return list, nil
}

func (s *Service) RenameList(ctx context.Context, session Session, listID string, input TitleInput) (list store.List, err error) {
	defer s.track("list.rename", &err)
	if err := validateInput(input); err != nil {
		return store.List{}, err
	}
	if _, err := s.guard.List(ctx, session.UserID, listID); err != nil {
		return store.List{}, s.fail(ctx, "list.rename", listEdit, err)
	}
	if err := s.store.UpdateListTitle(ctx, listID, strings.TrimSpace(input.Title)); err != nil {
		return store.List{}, s.fail(ctx, "list.rename", listEdit, err)
	}
	return s.reloadList(ctx, "list.rename", listID)
}

func (s *Service) ReorderCards(ctx context.Context, session Session, listID string, input ReorderCardsInput) (list store.List, err error) {
	defer s.track("list.reorder_cards", &err)
	if err := validateInput(input); err != nil {
		return store.List{}, err
	}
	return s.reorderCards(ctx, session, "list.reorder_cards", listID, input.Cards)
}

func (s *Service) reorderCards(ctx context.Context, session Session, op, listID string, cardIDs []string) (store.List, error) {
	if _, err := s.guard.List(ctx, session.UserID, listID); err != nil {
		return store.List{}, s.fail(ctx, op, listEdit, err)
	}
	if err := s.store.ReorderListCards(ctx, listID, cardIDs); err != nil {
		return store.List{}, s.fail(ctx, op, listEdit, err)
	}
	return s.reloadList(ctx, op, listID)
}

// MoveCards applies a drag between two lists. Both lists must exist and
// belong to the acting user before either sequence is written. A move whose
// origin and destination coincide is a reorder of that list.
func (s *Service) MoveCards(ctx context.Context, session Session, input MoveCardsInput) (err error) {
	defer s.track("list.move_cards", &err)
	if err := validateInput(input); err != nil {
		return err
	}

	if input.ListOfOriginID == input.DestinationListID {
		_, err := s.reorderCards(ctx, session, "list.move_cards", input.DestinationListID, input.UpdatedDestinationCards)
		return err
	}

	if _, err := s.guard.Lists(ctx, session.UserID, input.ListOfOriginID, input.DestinationListID); err != nil {
		return s.fail(ctx, "list.move_cards", listEdit, err)
	}
	if err := s.store.MoveCards(ctx,
		input.ListOfOriginID, input.DestinationListID,
		input.UpdatedOriginCards, input.UpdatedDestinationCards,
	); err != nil {
		return s.fail(ctx, "list.move_cards", listEdit, err)
	}
	return nil
}

func (s *Service) DeleteList(ctx context.Context, session Session, listID string) (err error) {
	defer s.track("list.delete", &err)
	if _, err := s.guard.List(ctx, session.UserID, listID); err != nil {
		return s.fail(ctx, "list.delete", listDelete, err)
	}
	if err := s.store.DeleteList(ctx, listID); err != nil {
		return s.fail(ctx, "list.delete", listDelete, err)
	}
	return nil
}

func (s *Service) reloadList(ctx context.Context, op, listID string) (store.List, error) {
	list, err := s.store.GetList(ctx, listID)
	if err != nil {
		return store.List{}, s.fail(ctx, op, listEdit, err)
	}
	return list, nil
}

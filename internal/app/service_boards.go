package app

import (
	"context"
	"strings"
	"time"

	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type TitleInput struct {
	Title string `json:"title" validate:"notblank"`
}

type ReorderListsInput struct {
	Lists []string `json:"lists" validate:"required,dive,notblank"`
}

var (
	boardEdit = failure{
		notFound: "Could not find board for the provided id.",
		denied:   "You are not allowed to edit this board.",
		failed:   "Something went wrong, could not update board.",
	}
	boardDelete = failure{
		notFound: "Could not find board for this id.",
		denied:   "You are not allowed to delete this board.",
		failed:   "Something went wrong, could not delete board.",
	}
)

func (s *Service) GetBoard(ctx context.Context, boardID string) (store.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, s.fail(ctx, "board.get", failure{
			notFound: "Could not find board for the provided id.",
			failed:   "Something went wrong, could not find board.",
		}, err)
	}
	return board, nil
}

// BoardsByUser distinguishes a missing user (NOT_FOUND) from a user with no
// boards (NO_CHILDREN).
func (s *Service) BoardsByUser(ctx context.Context, userID string) ([]store.Board, error) {
	f := failure{
		notFound: "Could not find user for the provided id.",
		failed:   "Fetching boards failed, please try again later.",
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return nil, s.fail(ctx, "board.by_user", f, err)
	}
	boards, err := s.store.ListBoardsByOwner(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "board.by_user", f, err)
	}
	if len(boards) == 0 {
		return nil, noChildren("Could not find boards for the provided user id.")
	}
	return boards, nil
}

func (s *Service) CreateBoard(ctx context.Context, session Session, input TitleInput) (board store.Board, err error) {
	defer s.track("board.create", &err)
	if err := validateInput(input); err != nil {
		return store.Board{}, err
	}

	f := failure{
		notFound: "Could not find user for provided id.",
		failed:   "Creating board failed, please try again.",
	}
	if _, err := s.store.GetUserByID(ctx, session.UserID); err != nil {
		return store.Board{}, s.fail(ctx, "board.create", f, err)
	}

	now := time.Now().UTC()
	board = store.Board{
		ID:        util.NewID(""),
		Title:     strings.TrimSpace(input.Title),
		OwnerID:   session.UserID,
		ListIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertBoard(ctx, board); err != nil {
		return store.Board{}, s.fail(ctx, "board.create", f, err)
	}
	return board, nil
}

func (s *Service) RenameBoard(ctx context.Context, session Session, boardID string, input TitleInput) (board store.Board, err error) {
	defer s.track("board.rename", &err)
	if err := validateInput(input); err != nil {
		return store.Board{}, err
	}
	if _, err := s.guard.Board(ctx, session.UserID, boardID); err != nil {
		return store.Board{}, s.fail(ctx, "board.rename", boardEdit, err)
	}
	if err := s.store.UpdateBoardTitle(ctx, boardID, strings.TrimSpace(input.Title)); err != nil {
		return store.Board{}, s.fail(ctx, "board.rename", boardEdit, err)
	}
	return s.reloadBoard(ctx, "board.rename", boardID)
}

// ReorderLists replaces the board's list order wholesale.
func (s *Service) ReorderLists(ctx context.Context, session Session, boardID string, input ReorderListsInput) (board store.Board, err error) {
	defer s.track("board.reorder_lists", &err)
	if err := validateInput(input); err != nil {
		return store.Board{}, err
	}
	if _, err := s.guard.Board(ctx, session.UserID, boardID); err != nil {
		return store.Board{}, s.fail(ctx, "board.reorder_lists", boardEdit, err)
	}
	if err := s.store.ReorderBoardLists(ctx, boardID, input.Lists); err != nil {
		return store.Board{}, s.fail(ctx, "board.reorder_lists", boardEdit, err)
	}
	return s.reloadBoard(ctx, "board.reorder_lists", boardID)
}

func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) (err error) {
	defer s.track("board.delete", &err)
	if _, err := s.guard.Board(ctx, session.UserID, boardID); err != nil {
		return s.fail(ctx, "board.delete", boardDelete, err)
	}
	if err := s.store.DeleteBoard(ctx, boardID); err != nil {
		return s.fail(ctx, "board.delete", boardDelete, err)
	}
	return nil
}

func (s *Service) reloadBoard(ctx context.Context, op, boardID string) (store.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, s.fail(ctx, op, boardEdit, err)
	}
	return board, nil
}

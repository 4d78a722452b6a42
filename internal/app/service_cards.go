package app

import (
	"context"
	"strings"
	"time"

	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

var (
	cardEdit = failure{
		notFound: "Could not find card for the provided id.",
		denied:   "You are not allowed to edit this card.",
		failed:   "Something went wrong, could not update card.",
	}
	cardDelete = failure{
		notFound: "Could not find card for this id.",
		denied:   "You are not allowed to delete this card.",
		failed:   "Something went wrong, could not delete card.",
	}
)

func (s *Service) GetCard(ctx context.Context, cardID string) (store.Card, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return store.Card{}, s.fail(ctx, "card.get", failure{
			notFound: "Could not find card for the provided id.",
			failed:   "Something went wrong, could not find card.",
		}, err)
	}
	return card, nil
}

func (s *Service) CardsByList(ctx context.Context, listID string) ([]store.Card, error) {
	f := failure{
		notFound: "Could not find list for the provided id.",
		failed:   "Fetching cards failed, please try again later.",
	}
	if _, err := s.store.GetList(ctx, listID); err != nil {
		return nil, s.fail(ctx, "card.by_list", f, err)
	}
	cards, err := s.store.ListCardsByList(ctx, listID)
	if err != nil {
		return nil, s.fail(ctx, "card.by_list", f, err)
	}
	if len(cards) == 0 {
		return nil, noChildren("Could not find cards for the provided list id.")
	}
	return cards, nil
}

func (s *Service) CreateCard(ctx context.Context, session Session, listID string, input TitleInput) (card store.Card, err error) {
	defer s.track("card.create", &err)
	if err := validateInput(input); err != nil {
		return store.Card{}, err
	}

	f := failure{
		notFound: "Could not find list for provided id.",
		denied:   "You are not allowed to create cards in this list.",
		failed:   "Creating card failed, please try again.",
	}
	if _, err := s.guard.List(ctx, session.UserID, listID); err != nil {
		return store.Card{}, s.fail(ctx, "card.create", f, err)
	}

	now := time.Now().UTC()
	card = store.Card{
		ID:        util.NewID(""),
		Title:     strings.TrimSpace(input.Title),
		ListID:    listID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertCard(ctx, card); err != nil {
		return store.Card{}, s.fail(ctx, "card.create", f, err)
	}
	return card, nil
}

func (s *Service) RenameCard(ctx context.Context, session Session, cardID string, input TitleInput) (card store.Card, err error) {
	defer s.track("card.rename", &err)
	if err := validateInput(input); err != nil {
		return store.Card{}, err
	}
	if _, err := s.guard.Card(ctx, session.UserID, cardID); err != nil {
		return store.Card{}, s.fail(ctx, "card.rename", cardEdit, err)
	}
	if err := s.store.UpdateCardTitle(ctx, cardID, strings.TrimSpace(input.Title)); err != nil {
		return store.Card{}, s.fail(ctx, "card.rename", cardEdit, err)
	}
	card, err = s.store.GetCard(ctx, cardID)
	if err != nil {
		return store.Card{}, s.fail(ctx, "card.rename", cardEdit, err)
	}
	return card, nil
}

func (s *Service) DeleteCard(ctx context.Context, session Session, cardID string) (err error) {
	defer s.track("card.delete", &err)
	if _, err := s.guard.Card(ctx, session.UserID, cardID); err != nil {
		return s.fail(ctx, "card.delete", cardDelete, err)
	}
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return s.fail(ctx, "card.delete", cardDelete, err)
	}
	return nil
}

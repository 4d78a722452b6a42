package store

import (
	"context"
	"database/sql"
	"slices"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps every entity in process memory. Each mutation checks all
// of its preconditions before writing, so a failed call leaves no partial
// state behind.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	emails  map[string]string
	boards  map[string]Board
	lists   map[string]List
	cards   map[string]Card
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   map[string]User{},
		emails:  map[string]string{},
		boards:  map[string]Board{},
		lists:   map[string]List{},
		cards:   map[string]Card{},
		revoked: map[string]time.Time{},
		now:     time.Now,
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[user.Email]; taken {
		return ErrDuplicateEmail
	}
	user.BoardIDs = []string{}
	s.users[user.ID] = user
	s.emails[user.Email] = user.ID
	return nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return cloneUser(user), nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	s.mu.RLock()
	id, ok := s.emails[email]
	s.mu.RUnlock()
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return s.GetUserByID(ctx, id)
}

func (s *MemoryStore) ListUsers(context.Context) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (s *MemoryStore) GetBoard(_ context.Context, id string) (Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board, ok := s.boards[id]
	if !ok {
		return Board{}, sql.ErrNoRows
	}
	return cloneBoard(board), nil
}

func (s *MemoryStore) ListBoardsByOwner(_ context.Context, ownerID string) ([]Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.users[ownerID]
	if !ok {
		return nil, nil
	}
	boards := make([]Board, 0, len(owner.BoardIDs))
	for _, id := range owner.BoardIDs {
		boards = append(boards, cloneBoard(s.boards[id]))
	}
	return boards, nil
}

func (s *MemoryStore) InsertBoard(_ context.Context, board Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.users[board.OwnerID]
	if !ok {
		return sql.ErrNoRows
	}
	board.ListIDs = []string{}
	board.UpdatedAt = board.CreatedAt
	s.boards[board.ID] = board
	owner.BoardIDs = append(slices.Clone(owner.BoardIDs), board.ID)
	s.users[owner.ID] = owner
	return nil
}

func (s *MemoryStore) UpdateBoardTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[id]
	if !ok {
		return sql.ErrNoRows
	}
	board.Title = title
	board.UpdatedAt = s.now().UTC()
	s.boards[id] = board
	return nil
}

func (s *MemoryStore) ReorderBoardLists(_ context.Context, boardID string, listIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[boardID]
	if !ok {
		return sql.ErrNoRows
	}
	if !isPermutation(board.ListIDs, listIDs) {
		return ErrInvalidOrder
	}
	board.ListIDs = slices.Clone(listIDs)
	board.UpdatedAt = s.now().UTC()
	s.boards[boardID] = board
	return nil
}

func (s *MemoryStore) DeleteBoard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[id]
	if !ok {
		return sql.ErrNoRows
	}
	for _, listID := range board.ListIDs {
		s.dropList(listID)
	}
	delete(s.boards, id)
	if owner, ok := s.users[board.OwnerID]; ok {
		owner.BoardIDs = without(owner.BoardIDs, id)
		s.users[owner.ID] = owner
	}
	return nil
}

func (s *MemoryStore) GetList(_ context.Context, id string) (List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[id]
	if !ok {
		return List{}, sql.ErrNoRows
	}
	return cloneList(list), nil
}

func (s *MemoryStore) ListListsByBoard(_ context.Context, boardID string) ([]List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	board, ok := s.boards[boardID]
	if !ok {
		return nil, nil
	}
	lists := make([]List, 0, len(board.ListIDs))
	for _, id := range board.ListIDs {
		lists = append(lists, cloneList(s.lists[id]))
	}
	return lists, nil
}

func (s *MemoryStore) InsertList(_ context.Context, list List) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	board, ok := s.boards[list.BoardID]
	if !ok {
		return sql.ErrNoRows
	}
	list.CardIDs = []string{}
	list.UpdatedAt = list.CreatedAt
	s.lists[list.ID] = list
	board.ListIDs = append(slices.Clone(board.ListIDs), list.ID)
	board.UpdatedAt = s.now().UTC()
	s.boards[board.ID] = board
	return nil
}

func (s *MemoryStore) UpdateListTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[id]
	if !ok {
		return sql.ErrNoRows
	}
	list.Title = title
	list.UpdatedAt = s.now().UTC()
	s.lists[id] = list
	return nil
}

func (s *MemoryStore) ReorderListCards(_ context.Context, listID string, cardIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[listID]
	if !ok {
		return sql.ErrNoRows
	}
	if !isPermutation(list.CardIDs, cardIDs) {
		return ErrInvalidOrder
	}
	list.CardIDs = slices.Clone(cardIDs)
	list.UpdatedAt = s.now().UTC()
	s.lists[listID] = list
	return nil
}

func (s *MemoryStore) MoveCards(_ context.Context, originID, destinationID string, originCards, destinationCards []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	origin, ok := s.lists[originID]
	if !ok {
		return sql.ErrNoRows
	}
	destination, ok := s.lists[destinationID]
	if !ok {
		return sql.ErrNoRows
	}

	current := append(slices.Clone(origin.CardIDs), destination.CardIDs...)
	next := append(slices.Clone(originCards), destinationCards...)
	if originID == destinationID {
		current = origin.CardIDs
		next = destinationCards
	}
	if !isPermutation(current, next) {
		return ErrInvalidOrder
	}

	now := s.now().UTC()
	if originID != destinationID {
		origin.CardIDs = slices.Clone(originCards)
		origin.UpdatedAt = now
		s.lists[originID] = origin
		s.reparent(originCards, originID, now)
	}
	destination.CardIDs = slices.Clone(destinationCards)
	destination.UpdatedAt = now
	s.lists[destinationID] = destination
	s.reparent(destinationCards, destinationID, now)
	return nil
}

func (s *MemoryStore) reparent(cardIDs []string, listID string, now time.Time) {
	for _, id := range cardIDs {
		card := s.cards[id]
		if card.ListID != listID {
			card.ListID = listID
			card.UpdatedAt = now
			s.cards[id] = card
		}
	}
}

func (s *MemoryStore) DeleteList(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[id]
	if !ok {
		return sql.ErrNoRows
	}
	if board, ok := s.boards[list.BoardID]; ok {
		board.ListIDs = without(board.ListIDs, id)
		board.UpdatedAt = s.now().UTC()
		s.boards[board.ID] = board
	}
	s.dropList(id)
	return nil
}

// dropList removes a list and its cards. Callers hold the write lock.
func (s *MemoryStore) dropList(id string) {
	list, ok := s.lists[id]
	if !ok {
		return
	}
	for _, cardID := range list.CardIDs {
		delete(s.cards, cardID)
	}
	delete(s.lists, id)
}

func (s *MemoryStore) GetCard(_ context.Context, id string) (Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	card, ok := s.cards[id]
	if !ok {
		return Card{}, sql.ErrNoRows
	}
	return card, nil
}

func (s *MemoryStore) ListCardsByList(_ context.Context, listID string) ([]Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.lists[listID]
	if !ok {
		return nil, nil
	}
	cards := make([]Card, 0, len(list.CardIDs))
	for _, id := range list.CardIDs {
		cards = append(cards, s.cards[id])
	}
	return cards, nil
}

func (s *MemoryStore) InsertCard(_ context.Context, card Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[card.ListID]
	if !ok {
		return sql.ErrNoRows
	}
	card.UpdatedAt = card.CreatedAt
	s.cards[card.ID] = card
	list.CardIDs = append(slices.Clone(list.CardIDs), card.ID)
	list.UpdatedAt = s.now().UTC()
	s.lists[list.ID] = list
	return nil
}

func (s *MemoryStore) UpdateCardTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return sql.ErrNoRows
	}
	card.Title = title
	card.UpdatedAt = s.now().UTC()
	s.cards[id] = card
	return nil
}

func (s *MemoryStore) DeleteCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[id]
	if !ok {
		return sql.ErrNoRows
	}
	if list, ok := s.lists[card.ListID]; ok {
		list.CardIDs = without(list.CardIDs, id)
		list.UpdatedAt = s.now().UTC()
		s.lists[list.ID] = list
	}
	delete(s.cards, id)
	return nil
}

func (s *MemoryStore) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[jti] = expiresAt
	return nil
}

func (s *MemoryStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, ok := s.revoked[jti]
	return ok && expiresAt.After(s.now()), nil
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func cloneUser(user User) User {
	user.BoardIDs = slices.Clone(user.BoardIDs)
	return user
}

func cloneBoard(board Board) Board {
	board.ListIDs = slices.Clone(board.ListIDs)
	return board
}

func cloneList(list List) List {
	list.CardIDs = slices.Clone(list.CardIDs)
	return list
}

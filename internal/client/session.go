package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"taskboard/api/internal/mirror"
)

const msgPropagateFailed = "Unable to propagate most recent changes, please refresh the page."

var (
	ErrNotSignedIn  = errors.New("not signed in")
	ErrUnknownBoard = errors.New("board not found in local state")
	ErrUnknownList  = errors.New("list not found in local state")
	ErrUnknownCard  = errors.New("card not found in local state")
)

type MutationState int

const (
	Pending MutationState = iota
	Confirmed
	Failed
)

func (s MutationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("MutationState(%d)", int(s))
	}
}

// Mutation tracks one persistence call.
type Mutation struct {
	ID    uint64
	Kind  string
	State MutationState
	Err   error
}

type Notification struct {
	Message string
	Err     error
}

type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Session pairs the API with a mirror store. Renames and reorders update the
// mirror first and persist in the background, one call at a time in the
// order they were made. Creates and deletes wait for the server because the
// mirror needs its answer. A failed background call does not roll the mirror
// back.
type Session struct {
	api       *API
	store     *mirror.Store
	tokens    TokenStore
	notifier  Notifier
	reconcile bool

	flight singleflight.Group
	wg     sync.WaitGroup

	// Background calls run one at a time in dispatch order.
	queueMu  sync.Mutex
	queue    []func()
	draining bool

	mu        sync.Mutex
	nextID    uint64
	mutations []Mutation
}

type Option func(*Session)

func WithTokenStore(tokens TokenStore) Option {
	return func(s *Session) {
		if tokens != nil {
			s.tokens = tokens
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithReconcileOnError re-fetches the user's boards after any failed
// persistence call so the mirror converges back to the server.
func WithReconcileOnError() Option {
	return func(s *Session) {
		s.reconcile = true
	}
}

func NewSession(api *API, opts ...Option) *Session {
	s := &Session{
		api:      api,
		store:    mirror.NewStore(),
		tokens:   noTokenStore{},
		notifier: NotifierFunc(func(Notification) {}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() mirror.State {
	return s.store.State()
}

func (s *Session) Mirror() *mirror.Store {
	return s.store
}

// Mutations lists every tracked persistence call in start order.
func (s *Session) Mutations() []Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Mutation, len(s.mutations))
	copy(out, s.mutations)
	return out
}

// Flush blocks until every background call has finished.
func (s *Session) Flush() {
	s.wg.Wait()
}

// Restore signs back in with a stored token. A token the server rejects is
// discarded.
func (s *Session) Restore(ctx context.Context) error {
	token, err := s.tokens.LoadToken()
	if err != nil {
		return err
	}
	if token == "" {
		return ErrNotSignedIn
	}
	s.api.SetToken(token)
	if err := s.Refresh(ctx); err != nil {
		s.api.SetToken("")
		_ = s.tokens.ClearToken()
		return err
	}
	return nil
}

func (s *Session) Signup(ctx context.Context, name, email, password string) error {
	result, err := s.api.Signup(ctx, name, email, password)
	if err != nil {
		return s.authFailed(err)
	}
	return s.signedIn(ctx, result.Token)
}

func (s *Session) Login(ctx context.Context, email, password string) error {
	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		return s.authFailed(err)
	}
	return s.signedIn(ctx, result.Token)
}

func (s *Session) signedIn(ctx context.Context, token string) error {
	s.api.SetToken(token)
	if err := s.tokens.SaveToken(token); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

func (s *Session) authFailed(err error) error {
	s.api.SetToken("")
	_ = s.tokens.ClearToken()
	s.store.Dispatch(mirror.Logout{})
	s.notify(err, "")
	return err
}

// Logout revokes the token server-side when possible and always clears
// local state.
func (s *Session) Logout(ctx context.Context) error {
	var err error
	if s.api.Token() != "" {
		err = s.api.Logout(ctx)
	}
	s.api.SetToken("")
	s.store.Dispatch(mirror.Logout{})
	if clearErr := s.tokens.ClearToken(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

// Refresh reloads the user and all boards. Concurrent calls share one request.
func (s *Session) Refresh(ctx context.Context) error {
	_, err, _ := s.flight.Do("personal-data", func() (any, error) {
		data, err := s.api.PersonalData(ctx)
		if err != nil {
			return nil, err
		}
		s.store.Dispatch(mirror.SetUser{User: data.User, Token: data.Token, Boards: data.Boards})
		return nil, nil
	})
	if err != nil {
		s.notify(err, "")
	}
	return err
}

func (s *Session) OpenBoard(boardID string) error {
	board, ok := s.store.Board(boardID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBoard, boardID)
	}
	s.store.Dispatch(mirror.OpenBoard{Board: board})
	return nil
}

func (s *Session) CreateBoard(ctx context.Context, title string) (mirror.Board, error) {
	id := s.begin("board.create")
	board, err := s.api.CreateBoard(ctx, title)
	if s.settle(ctx, id, err, "") != nil {
		return mirror.Board{}, err
	}
	s.store.Dispatch(mirror.AddBoard{Board: board})
	return board, nil
}

func (s *Session) DeleteBoard(ctx context.Context, boardID string) error {
	id := s.begin("board.delete")
	err := s.api.DeleteBoard(ctx, boardID)
	if s.settle(ctx, id, err, "") != nil {
		return err
	}
	s.store.Dispatch(mirror.RemoveBoard{BoardID: boardID})
	return nil
}

func (s *Session) RenameBoard(ctx context.Context, boardID, title string) error {
	if _, ok := s.store.Board(boardID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBoard, boardID)
	}
	s.store.Dispatch(mirror.RenameBoard{BoardID: boardID, Title: title})
	s.persist(ctx, "board.rename", "", func(ctx context.Context) error {
		return s.api.RenameBoard(ctx, boardID, title)
	})
	return nil
}

func (s *Session) ReorderLists(ctx context.Context, boardID string, listIDs []string) error {
	if _, ok := s.store.Board(boardID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBoard, boardID)
	}
	s.apply(ctx, mirror.ShuffleLists{BoardID: boardID, ListIDs: listIDs})
	return nil
}

func (s *Session) CreateList(ctx context.Context, boardID, title string) (mirror.List, error) {
	id := s.begin("list.create")
	list, err := s.api.CreateList(ctx, boardID, title)
	if s.settle(ctx, id, err, "") != nil {
		return mirror.List{}, err
	}
	s.store.Dispatch(mirror.AddList{BoardID: boardID, List: list})
	return list, nil
}

func (s *Session) DeleteList(ctx context.Context, listID string) error {
	board, _, ok := s.store.FindList(listID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, listID)
	}
	id := s.begin("list.delete")
	err := s.api.DeleteList(ctx, listID)
	if s.settle(ctx, id, err, "") != nil {
		return err
	}
	s.store.Dispatch(mirror.RemoveList{BoardID: board.ID, ListID: listID})
	return nil
}

func (s *Session) RenameList(ctx context.Context, listID, title string) error {
	board, _, ok := s.store.FindList(listID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, listID)
	}
	s.store.Dispatch(mirror.RenameList{BoardID: board.ID, ListID: listID, Title: title})
	s.persist(ctx, "list.rename", "", func(ctx context.Context) error {
		return s.api.RenameList(ctx, listID, title)
	})
	return nil
}

func (s *Session) ReorderCards(ctx context.Context, listID string, cardIDs []string) error {
	board, _, ok := s.store.FindList(listID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, listID)
	}
	s.apply(ctx, mirror.MoveCardWithinList{BoardID: board.ID, ListID: listID, CardIDs: cardIDs})
	return nil
}

// MoveCards rewrites two lists after a drag. Equal list ids reorder one list.
func (s *Session) MoveCards(ctx context.Context, req MoveRequest) error {
	if req.ListOfOriginID == req.DestinationListID {
		return s.ReorderCards(ctx, req.DestinationListID, req.UpdatedDestinationCards)
	}
	board, _, ok := s.store.FindList(req.ListOfOriginID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, req.ListOfOriginID)
	}
	if _, ok := board.List(req.DestinationListID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownList, req.DestinationListID)
	}
	s.apply(ctx, mirror.ShuffleCards{
		BoardID:            board.ID,
		OriginListID:       req.ListOfOriginID,
		DestinationListID:  req.DestinationListID,
		OriginCardIDs:      req.UpdatedOriginCards,
		DestinationCardIDs: req.UpdatedDestinationCards,
	})
	return nil
}

// Drop applies a finished drag on the given board.
func (s *Session) Drop(ctx context.Context, boardID string, ev DropEvent) error {
	board, ok := s.store.Board(boardID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBoard, boardID)
	}
	action, err := translateDrop(board, ev)
	if err != nil || action == nil {
		return err
	}
	s.apply(ctx, action)
	return nil
}

func (s *Session) CreateCard(ctx context.Context, listID, title string) (mirror.Card, error) {
	board, _, ok := s.store.FindList(listID)
	if !ok {
		return mirror.Card{}, fmt.Errorf("%w: %s", ErrUnknownList, listID)
	}
	id := s.begin("card.create")
	card, err := s.api.CreateCard(ctx, listID, title)
	if s.settle(ctx, id, err, "") != nil {
		return mirror.Card{}, err
	}
	s.store.Dispatch(mirror.AddCard{BoardID: board.ID, ListID: listID, Card: card})
	return card, nil
}

func (s *Session) DeleteCard(ctx context.Context, cardID string) error {
	board, list, _, ok := s.store.FindCard(cardID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
	}
	id := s.begin("card.delete")
	err := s.api.DeleteCard(ctx, cardID)
	if s.settle(ctx, id, err, "") != nil {
		return err
	}
	s.store.Dispatch(mirror.RemoveCard{BoardID: board.ID, ListID: list.ID, CardID: cardID})
	return nil
}

func (s *Session) RenameCard(ctx context.Context, cardID, title string) error {
	board, list, _, ok := s.store.FindCard(cardID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
	}
	s.store.Dispatch(mirror.RenameCard{BoardID: board.ID, ListID: list.ID, CardID: cardID, Title: title})
	s.persist(ctx, "card.rename", "", func(ctx context.Context) error {
		return s.api.RenameCard(ctx, cardID, title)
	})
	return nil
}

// apply dispatches an ordering action and persists it in the background.
func (s *Session) apply(ctx context.Context, action mirror.Action) {
	s.store.Dispatch(action)
	switch a := action.(type) {
	case mirror.ShuffleLists:
		s.persist(ctx, "board.reorder_lists", msgPropagateFailed, func(ctx context.Context) error {
			return s.api.ReorderLists(ctx, a.BoardID, a.ListIDs)
		})
	case mirror.MoveCardWithinList:
		s.persist(ctx, "list.reorder_cards", msgPropagateFailed, func(ctx context.Context) error {
			return s.api.ReorderCards(ctx, a.ListID, a.CardIDs)
		})
	case mirror.ShuffleCards:
		s.persist(ctx, "list.move_cards", msgPropagateFailed, func(ctx context.Context) error {
			return s.api.MoveCards(ctx, MoveRequest{
				ListOfOriginID:          a.OriginListID,
				DestinationListID:       a.DestinationListID,
				UpdatedOriginCards:      a.OriginCardIDs,
				UpdatedDestinationCards: a.DestinationCardIDs,
			})
		})
	}
}

// persist queues call behind every earlier background call. The caller's
// cancellation does not reach it.
func (s *Session) persist(ctx context.Context, kind, failMessage string, call func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	id := s.begin(kind)
	s.enqueue(func() {
		_ = s.settle(ctx, id, call(ctx), failMessage)
	})
}

func (s *Session) enqueue(job func()) {
	s.wg.Add(1)
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue = append(s.queue, job)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

// drain runs queued jobs until the queue is empty, then exits.
func (s *Session) drain() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.queueMu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		job()
		s.wg.Done()
	}
}

func (s *Session) begin(kind string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.mutations = append(s.mutations, Mutation{ID: s.nextID, Kind: kind, State: Pending})
	return s.nextID
}

// settle records the outcome of mutation id and handles a failure.
func (s *Session) settle(ctx context.Context, id uint64, err error, failMessage string) error {
	s.mu.Lock()
	for i := range s.mutations {
		if s.mutations[i].ID != id {
			continue
		}
		if err != nil {
			s.mutations[i].State = Failed
			s.mutations[i].Err = err
		} else {
			s.mutations[i].State = Confirmed
		}
		break
	}
	s.mu.Unlock()

	if err == nil {
		return nil
	}
	s.notify(err, failMessage)
	if s.reconcile {
		_ = s.Refresh(ctx)
	}
	return err
}

func (s *Session) notify(err error, message string) {
	if message == "" {
		message = err.Error()
	}
	s.notifier.Notify(Notification{Message: message, Err: err})
}

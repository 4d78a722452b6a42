package mirror

import "sync"

// Store is the single owner of mirror state. Dispatch is the only way to
// change it; readers get deep copies.
type Store struct {
	mu    sync.RWMutex
	state State
}

func NewStore() *Store {
	return &Store{}
}

// Dispatch applies action to both containers under one lock.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := reduceSession(s.state, action)
	next.AllBoards = reduceAllBoards(s.state.AllBoards, action)
	next.Current = reduceCurrent(s.state.Current, action)
	s.state = next
}

// State returns a snapshot that callers may modify freely.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Board finds a board by id, preferring the open board's copy.
func (s *Store) Board(boardID string) (Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.Current != nil && s.state.Current.ID == boardID {
		return cloneBoard(*s.state.Current), true
	}
	for _, b := range s.state.AllBoards {
		if b.ID == boardID {
			return cloneBoard(b), true
		}
	}
	return Board{}, false
}

// FindList locates the board that holds listID.
func (s *Store) FindList(listID string) (Board, List, bool) {
	state := s.State()
	for _, b := range boardsOf(state) {
		if l, ok := b.List(listID); ok {
			return b, l, true
		}
	}
	return Board{}, List{}, false
}

// FindCard locates the board and list that hold cardID.
func (s *Store) FindCard(cardID string) (Board, List, Card, bool) {
	state := s.State()
	for _, b := range boardsOf(state) {
		for _, l := range b.Lists {
			for _, c := range l.Cards {
				if c.ID == cardID {
					return b, l, c, true
				}
			}
		}
	}
	return Board{}, List{}, Card{}, false
}

func boardsOf(state State) []Board {
	if state.Current == nil {
		return state.AllBoards
	}
	return append([]Board{*state.Current}, state.AllBoards...)
}

func reduceSession(state State, action Action) State {
	switch a := action.(type) {
	case SetUser:
		user := a.User
		return State{User: &user, Token: a.Token, Authenticated: true}
	case Logout:
		return State{}
	default:
		return State{User: state.User, Token: state.Token, Authenticated: state.Authenticated}
	}
}

func reduceAllBoards(boards []Board, action Action) []Board {
	switch a := action.(type) {
	case SetUser:
		out := cloneBoards(a.Boards)
		if out == nil {
			out = []Board{}
		}
		return out
	case Logout:
		return nil
	case AddBoard:
		out := make([]Board, 0, len(boards)+1)
		out = append(out, boards...)
		return append(out, cloneBoard(a.Board))
	case RemoveBoard:
		return without(boards, func(b Board) bool { return b.ID == a.BoardID })
	case boardAction:
		out := make([]Board, len(boards))
		for i, b := range boards {
			if b.ID == a.boardID() {
				b = a.patch(b)
			}
			out[i] = b
		}
		return out
	default:
		return boards
	}
}

func reduceCurrent(current *Board, action Action) *Board {
	switch a := action.(type) {
	case SetUser:
		// A fresh fetch also refreshes the open board, or closes it if gone.
		if current == nil {
			return nil
		}
		for _, b := range a.Boards {
			if b.ID == current.ID {
				fresh := cloneBoard(b)
				return &fresh
			}
		}
		return nil
	case Logout:
		return nil
	case OpenBoard:
		b := cloneBoard(a.Board)
		return &b
	case RemoveBoard:
		if current != nil && current.ID == a.BoardID {
			return nil
		}
		return current
	case boardAction:
		if current == nil || current.ID != a.boardID() {
			return current
		}
		b := a.patch(*current)
		return &b
	default:
		return current
	}
}

package mirror

import "slices"

// Action is a command accepted by Store.Dispatch.
type Action interface {
	kind() string
}

// boardAction is an action confined to one board. Its patch is applied to
// the matching entry in AllBoards and to Current when that board is open.
type boardAction interface {
	Action
	boardID() string
	patch(Board) Board
}

// SetUser replaces the session after login or a personal-data fetch.
type SetUser struct {
	User   User
	Token  string
	Boards []Board
}

type Logout struct{}

// OpenBoard makes a board the current one.
type OpenBoard struct {
	Board Board
}

type AddBoard struct {
	Board Board
}

type RemoveBoard struct {
	BoardID string
}

type RenameBoard struct {
	BoardID string
	Title   string
}

// ShuffleLists reorders the board's lists to match ListIDs.
type ShuffleLists struct {
	BoardID string
	ListIDs []string
}

type AddList struct {
	BoardID string
	List    List
}

type RenameList struct {
	BoardID string
	ListID  string
	Title   string
}

type RemoveList struct {
	BoardID string
	ListID  string
}

// MoveCardWithinList reorders one list's cards to match CardIDs.
type MoveCardWithinList struct {
	BoardID string
	ListID  string
	CardIDs []string
}

// ShuffleCards rewrites two lists after a card is dragged between them.
type ShuffleCards struct {
	BoardID            string
	OriginListID       string
	DestinationListID  string
	OriginCardIDs      []string
	DestinationCardIDs []string
}

type AddCard struct {
	BoardID string
	ListID  string
	Card    Card
}

type RenameCard struct {
	BoardID string
	ListID  string
	CardID  string
	Title   string
}

type RemoveCard struct {
	BoardID string
	ListID  string
	CardID  string
}

func (SetUser) kind() string            { return "setUser" }
func (Logout) kind() string             { return "logout" }
func (OpenBoard) kind() string          { return "openBoard" }
func (AddBoard) kind() string           { return "addBoard" }
func (RemoveBoard) kind() string        { return "removeBoard" }
func (RenameBoard) kind() string        { return "renameBoard" }
func (ShuffleLists) kind() string       { return "shuffleLists" }
func (AddList) kind() string            { return "addList" }
func (RenameList) kind() string         { return "renameList" }
func (RemoveList) kind() string         { return "removeList" }
func (MoveCardWithinList) kind() string { return "moveCardWithinList" }
func (ShuffleCards) kind() string       { return "shuffleCards" }
func (AddCard) kind() string            { return "addCard" }
func (RenameCard) kind() string         { return "renameCard" }
func (RemoveCard) kind() string         { return "removeCard" }

func (a RenameBoard) boardID() string        { return a.BoardID }
func (a ShuffleLists) boardID() string       { return a.BoardID }
func (a AddList) boardID() string            { return a.BoardID }
func (a RenameList) boardID() string         { return a.BoardID }
func (a RemoveList) boardID() string         { return a.BoardID }
func (a MoveCardWithinList) boardID() string { return a.BoardID }
func (a ShuffleCards) boardID() string       { return a.BoardID }
func (a AddCard) boardID() string            { return a.BoardID }
func (a RenameCard) boardID() string         { return a.BoardID }
func (a RemoveCard) boardID() string         { return a.BoardID }

func (a RenameBoard) patch(b Board) Board {
	b.Title = a.Title
	return b
}

func (a ShuffleLists) patch(b Board) Board {
	b.Lists = reorder(b.Lists, a.ListIDs, func(l List) string { return l.ID })
	return b
}

func (a AddList) patch(b Board) Board {
	list := cloneList(a.List)
	if list.BoardOfOrigin == "" {
		list.BoardOfOrigin = b.ID
	}
	b.Lists = append(slices.Clone(b.Lists), list)
	return b
}

func (a RenameList) patch(b Board) Board {
	return patchList(b, a.ListID, func(l List) List {
		l.Title = a.Title
		return l
	})
}

func (a RemoveList) patch(b Board) Board {
	b.Lists = without(b.Lists, func(l List) bool { return l.ID == a.ListID })
	return b
}

func (a MoveCardWithinList) patch(b Board) Board {
	return patchList(b, a.ListID, func(l List) List {
		l.Cards = reorder(l.Cards, a.CardIDs, func(c Card) string { return c.ID })
		return l
	})
}

// patch rebuilds both lists from the cards they held before the drag. Every
// card that ends in the destination takes the destination as its list.
func (a ShuffleCards) patch(b Board) Board {
	origin, okOrigin := b.List(a.OriginListID)
	dest, okDest := b.List(a.DestinationListID)
	if !okOrigin || !okDest {
		return b
	}

	pool := make(map[string]Card, len(origin.Cards)+len(dest.Cards))
	for _, c := range origin.Cards {
		pool[c.ID] = c
	}
	for _, c := range dest.Cards {
		pool[c.ID] = c
	}
	placed := make(map[string]bool, len(pool))
	pick := func(ids []string, listID string) []Card {
		out := make([]Card, 0, len(ids))
		for _, id := range ids {
			c, ok := pool[id]
			if !ok || placed[id] {
				continue
			}
			placed[id] = true
			c.ListOfOrigin = listID
			out = append(out, c)
		}
		return out
	}

	originCards := pick(a.OriginCardIDs, a.OriginListID)
	destCards := pick(a.DestinationCardIDs, a.DestinationListID)
	// Cards neither sequence names stay in the origin list.
	for _, c := range slices.Concat(origin.Cards, dest.Cards) {
		if !placed[c.ID] {
			placed[c.ID] = true
			c.ListOfOrigin = a.OriginListID
			originCards = append(originCards, c)
		}
	}
	b = patchList(b, a.OriginListID, func(l List) List {
		l.Cards = originCards
		return l
	})
	return patchList(b, a.DestinationListID, func(l List) List {
		l.Cards = destCards
		return l
	})
}

func (a AddCard) patch(b Board) Board {
	return patchList(b, a.ListID, func(l List) List {
		card := a.Card
		card.ListOfOrigin = l.ID
		l.Cards = append(l.Cards, card)
		return l
	})
}

func (a RenameCard) patch(b Board) Board {
	return patchList(b, a.ListID, func(l List) List {
		for i := range l.Cards {
			if l.Cards[i].ID == a.CardID {
				l.Cards[i].Title = a.Title
			}
		}
		return l
	})
}

func (a RemoveCard) patch(b Board) Board {
	return patchList(b, a.ListID, func(l List) List {
		l.Cards = without(l.Cards, func(c Card) bool { return c.ID == a.CardID })
		return l
	})
}

// patchList applies fn to the list with the given id. Lists are copied so
// the caller's board is never written through.
func patchList(b Board, listID string, fn func(List) List) Board {
	lists := make([]List, len(b.Lists))
	for i, l := range b.Lists {
		if l.ID == listID {
			lists[i] = fn(cloneList(l))
			continue
		}
		lists[i] = l
	}
	b.Lists = lists
	return b
}

// reorder arranges items to follow ids. Items not named keep their relative
// order at the end and unknown ids are ignored, so a stale sequence never
// drops data from the mirror.
func reorder[T any](items []T, ids []string, key func(T) string) []T {
	byID := make(map[string]T, len(items))
	for _, item := range items {
		byID[key(item)] = item
	}
	out := make([]T, 0, len(items))
	placed := make(map[string]bool, len(ids))
	for _, id := range ids {
		item, ok := byID[id]
		if !ok || placed[id] {
			continue
		}
		placed[id] = true
		out = append(out, item)
	}
	for _, item := range items {
		if !placed[key(item)] {
			out = append(out, item)
		}
	}
	return out
}

func without[T any](items []T, drop func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !drop(item) {
			out = append(out, item)
		}
	}
	return out
}

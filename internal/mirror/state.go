// Package mirror keeps the client-side copy of the signed-in user's boards.
//
// Two containers are held: AllBoards, every board the user owns, and Current,
// the board that is open. Both change only through Store.Dispatch, which runs
// the transition for each container under one lock so a board-scoped action
// always lands in both or in neither.
package mirror

import "slices"

type User struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

type Card struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ListOfOrigin string `json:"listOfOrigin"`
}

type List struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	BoardOfOrigin string `json:"boardOfOrigin"`
	Cards         []Card `json:"cards"`
}

type Board struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
	Lists []List `json:"lists"`
}

// ListIDs returns the board's list ids in display order.
func (b Board) ListIDs() []string {
	out := make([]string, 0, len(b.Lists))
	for _, l := range b.Lists {
		out = append(out, l.ID)
	}
	return out
}

// List looks a list up by id.
func (b Board) List(listID string) (List, bool) {
	for _, l := range b.Lists {
		if l.ID == listID {
			return l, true
		}
	}
	return List{}, false
}

// CardIDs returns the list's card ids in display order.
func (l List) CardIDs() []string {
	out := make([]string, 0, len(l.Cards))
	for _, c := range l.Cards {
		out = append(out, c.ID)
	}
	return out
}

type State struct {
	User          *User
	Token         string
	Authenticated bool
	AllBoards     []Board
	Current       *Board
}

func cloneBoard(b Board) Board {
	out := b
	out.Lists = make([]List, len(b.Lists))
	for i, l := range b.Lists {
		out.Lists[i] = cloneList(l)
	}
	return out
}

func cloneList(l List) List {
	out := l
	out.Cards = slices.Clone(l.Cards)
	if out.Cards == nil {
		out.Cards = []Card{}
	}
	return out
}

func cloneBoards(boards []Board) []Board {
	if boards == nil {
		return nil
	}
	out := make([]Board, len(boards))
	for i, b := range boards {
		out[i] = cloneBoard(b)
	}
	return out
}

func (s State) clone() State {
	out := State{
		Token:         s.Token,
		Authenticated: s.Authenticated,
		AllBoards:     cloneBoards(s.AllBoards),
	}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Current != nil {
		b := cloneBoard(*s.Current)
		out.Current = &b
	}
	return out
}

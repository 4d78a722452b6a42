package app

import "taskboard/api/internal/store"

type userJSON struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Boards []string `json:"boards"`
}

type boardJSON struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Owner string   `json:"owner"`
	Lists []string `json:"lists"`
}

type listJSON struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	BoardOfOrigin string   `json:"boardOfOrigin"`
	Cards         []string `json:"cards"`
}

type cardJSON struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ListOfOrigin string `json:"listOfOrigin"`
}

type boardTreeJSON struct {
	ID    string         `json:"id"`
	Title string         `json:"title"`
	Owner string         `json:"owner"`
	Lists []listTreeJSON `json:"lists"`
}

type listTreeJSON struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	BoardOfOrigin string     `json:"boardOfOrigin"`
	Cards         []cardJSON `json:"cards"`
}

type personalUserJSON struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Email  string          `json:"email"`
	Boards []boardTreeJSON `json:"boards"`
}

func ids(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func userView(user store.User) userJSON {
	return userJSON{ID: user.ID, Name: user.Name, Email: user.Email, Boards: ids(user.BoardIDs)}
}

func boardView(board store.Board) boardJSON {
	return boardJSON{ID: board.ID, Title: board.Title, Owner: board.OwnerID, Lists: ids(board.ListIDs)}
}

func listView(list store.List) listJSON {
	return listJSON{ID: list.ID, Title: list.Title, BoardOfOrigin: list.BoardID, Cards: ids(list.CardIDs)}
}

func cardView(card store.Card) cardJSON {
	return cardJSON{ID: card.ID, Title: card.Title, ListOfOrigin: card.ListID}
}

func mapViews[T, V any](items []T, view func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, item := range items {
		out = append(out, view(item))
	}
	return out
}

func personalDataView(data PersonalData) personalUserJSON {
	boards := make([]boardTreeJSON, 0, len(data.Boards))
	for _, tree := range data.Boards {
		lists := make([]listTreeJSON, 0, len(tree.Lists))
		for _, lt := range tree.Lists {
			lists = append(lists, listTreeJSON{
				ID:            lt.List.ID,
				Title:         lt.List.Title,
				BoardOfOrigin: lt.List.BoardID,
				Cards:         mapViews(lt.Cards, cardView),
			})
		}
		boards = append(boards, boardTreeJSON{
			ID:    tree.Board.ID,
			Title: tree.Board.Title,
			Owner: tree.Board.OwnerID,
			Lists: lists,
		})
	}
	return personalUserJSON{
		ID:     data.User.ID,
		Name:   data.User.Name,
		Email:  data.User.Email,
		Boards: boards,
	}
}

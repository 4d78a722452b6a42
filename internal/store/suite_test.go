package store

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"testing"
	"time"

	"taskboard/api/internal/util"
)

type backend interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetBoard(ctx context.Context, id string) (Board, error)
	ListBoardsByOwner(ctx context.Context, ownerID string) ([]Board, error)
	InsertBoard(ctx context.Context, board Board) error
	UpdateBoardTitle(ctx context.Context, id, title string) error
	ReorderBoardLists(ctx context.Context, boardID string, listIDs []string) error
	DeleteBoard(ctx context.Context, id string) error
	GetList(ctx context.Context, id string) (List, error)
	ListListsByBoard(ctx context.Context, boardID string) ([]List, error)
	InsertList(ctx context.Context, list List) error
	UpdateListTitle(ctx context.Context, id, title string) error
	ReorderListCards(ctx context.Context, listID string, cardIDs []string) error
	MoveCards(ctx context.Context, originID, destinationID string, originCards, destinationCards []string) error
	DeleteList(ctx context.Context, id string) error
	GetCard(ctx context.Context, id string) (Card, error)
	ListCardsByList(ctx context.Context, listID string) ([]Card, error)
	InsertCard(ctx context.Context, card Card) error
	UpdateCardTitle(ctx context.Context, id, title string) error
	DeleteCard(ctx context.Context, id string) error
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

var (
	_ backend = (*MemoryStore)(nil)
	_ backend = (*PostgresStore)(nil)
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store backend
}

func (f fixture) now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (f fixture) user() User {
	f.t.Helper()
	id := util.NewID("")
	user := User{ID: id, Name: "Ada", Email: id + "@example.com", PasswordHash: "hash", CreatedAt: f.now()}
	if err := f.store.CreateUser(f.ctx, user); err != nil {
		f.t.Fatalf("create user: %v", err)
	}
	return user
}

func (f fixture) board(ownerID, title string) Board {
	f.t.Helper()
	board := Board{ID: util.NewID(""), Title: title, OwnerID: ownerID, CreatedAt: f.now()}
	if err := f.store.InsertBoard(f.ctx, board); err != nil {
		f.t.Fatalf("insert board: %v", err)
	}
	return board
}

func (f fixture) list(boardID, title string) List {
	f.t.Helper()
	list := List{ID: util.NewID(""), Title: title, BoardID: boardID, CreatedAt: f.now()}
	if err := f.store.InsertList(f.ctx, list); err != nil {
		f.t.Fatalf("insert list: %v", err)
	}
	return list
}

func (f fixture) card(listID, title string) Card {
	f.t.Helper()
	card := Card{ID: util.NewID(""), Title: title, ListID: listID, CreatedAt: f.now()}
	if err := f.store.InsertCard(f.ctx, card); err != nil {
		f.t.Fatalf("insert card: %v", err)
	}
	return card
}

func (f fixture) boardLists(boardID string) []string {
	f.t.Helper()
	board, err := f.store.GetBoard(f.ctx, boardID)
	if err != nil {
		f.t.Fatalf("get board: %v", err)
	}
	return board.ListIDs
}

func (f fixture) listCards(listID string) []string {
	f.t.Helper()
	list, err := f.store.GetList(f.ctx, listID)
	if err != nil {
		f.t.Fatalf("get list: %v", err)
	}
	return list.CardIDs
}

func assertIDs(t *testing.T, label string, got, want []string) {
	t.Helper()
	if len(got) == 0 && len(want) == 0 {
		return
	}
	if !slices.Equal(got, want) {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
}

func runStoreSuite(t *testing.T, newBackend func(t *testing.T) backend) {
	tests := []struct {
		name string
		run  func(f fixture)
	}{
		{"duplicate email rejected", testDuplicateEmail},
		{"creates append to parent sequences", testCreatesAppend},
		{"create under missing parent", testCreateMissingParent},
		{"rename updates only the title", testRename},
		{"reorder lists", testReorderLists},
		{"reorder rejects non-permutations", testReorderRejects},
		{"move cards between lists", testMoveCards},
		{"move rejects lost cards", testMoveRejects},
		{"move within one list", testMoveSameList},
		{"delete board cascades", testDeleteBoardCascades},
		{"delete list cascades", testDeleteListCascades},
		{"delete card detaches from list", testDeleteCard},
		{"revoked tokens", testRevokedTokens},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(fixture{t: t, ctx: context.Background(), store: newBackend(t)})
		})
	}
}

func testDuplicateEmail(f fixture) {
	user := f.user()
	dup := User{ID: util.NewID(""), Name: "Other", Email: user.Email, PasswordHash: "x", CreatedAt: f.now()}
	if err := f.store.CreateUser(f.ctx, dup); !errors.Is(err, ErrDuplicateEmail) {
		f.t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
	got, err := f.store.GetUserByEmail(f.ctx, user.Email)
	if err != nil {
		f.t.Fatalf("get by email: %v", err)
	}
	if got.ID != user.ID {
		f.t.Fatalf("expected original user %s, got %s", user.ID, got.ID)
	}
}

func testCreatesAppend(f fixture) {
	user := f.user()
	b1 := f.board(user.ID, "first")
	b2 := f.board(user.ID, "second")

	owner, err := f.store.GetUserByID(f.ctx, user.ID)
	if err != nil {
		f.t.Fatalf("get user: %v", err)
	}
	assertIDs(f.t, "owner boards", owner.BoardIDs, []string{b1.ID, b2.ID})

	boards, err := f.store.ListBoardsByOwner(f.ctx, user.ID)
	if err != nil {
		f.t.Fatalf("list boards: %v", err)
	}
	if len(boards) != 2 || boards[0].ID != b1.ID || boards[1].ID != b2.ID {
		f.t.Fatalf("unexpected board order: %+v", boards)
	}

	l1 := f.list(b1.ID, "todo")
	l2 := f.list(b1.ID, "done")
	assertIDs(f.t, "board lists", f.boardLists(b1.ID), []string{l1.ID, l2.ID})

	c1 := f.card(l1.ID, "write")
	c2 := f.card(l1.ID, "ship")
	assertIDs(f.t, "list cards", f.listCards(l1.ID), []string{c1.ID, c2.ID})

	cards, err := f.store.ListCardsByList(f.ctx, l1.ID)
	if err != nil {
		f.t.Fatalf("list cards: %v", err)
	}
	if len(cards) != 2 || cards[0].ListID != l1.ID {
		f.t.Fatalf("unexpected cards: %+v", cards)
	}
}

func testCreateMissingParent(f fixture) {
	if err := f.store.InsertBoard(f.ctx, Board{ID: util.NewID(""), Title: "x", OwnerID: "missing", CreatedAt: f.now()}); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("board under missing user: expected sql.ErrNoRows, got %v", err)
	}
	if err := f.store.InsertList(f.ctx, List{ID: util.NewID(""), Title: "x", BoardID: "missing", CreatedAt: f.now()}); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("list under missing board: expected sql.ErrNoRows, got %v", err)
	}
	if err := f.store.InsertCard(f.ctx, Card{ID: util.NewID(""), Title: "x", ListID: "missing", CreatedAt: f.now()}); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("card under missing list: expected sql.ErrNoRows, got %v", err)
	}
}

func testRename(f fixture) {
	user := f.user()
	board := f.board(user.ID, "old")
	list := f.list(board.ID, "old")
	card := f.card(list.ID, "old")

	if err := f.store.UpdateBoardTitle(f.ctx, board.ID, "board"); err != nil {
		f.t.Fatalf("rename board: %v", err)
	}
	if err := f.store.UpdateListTitle(f.ctx, list.ID, "list"); err != nil {
		f.t.Fatalf("rename list: %v", err)
	}
	if err := f.store.UpdateCardTitle(f.ctx, card.ID, "card"); err != nil {
		f.t.Fatalf("rename card: %v", err)
	}

	gotBoard, _ := f.store.GetBoard(f.ctx, board.ID)
	gotList, _ := f.store.GetList(f.ctx, list.ID)
	gotCard, _ := f.store.GetCard(f.ctx, card.ID)
	if gotBoard.Title != "board" || gotList.Title != "list" || gotCard.Title != "card" {
		f.t.Fatalf("titles not updated: %q %q %q", gotBoard.Title, gotList.Title, gotCard.Title)
	}
	assertIDs(f.t, "board lists", gotBoard.ListIDs, []string{list.ID})
	if gotCard.ListID != list.ID {
		f.t.Fatalf("card parent changed to %s", gotCard.ListID)
	}

	if err := f.store.UpdateBoardTitle(f.ctx, "missing", "x"); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func testReorderLists(f fixture) {
	user := f.user()
	board := f.board(user.ID, "b")
	a := f.list(board.ID, "a")
	b := f.list(board.ID, "b")
	c := f.list(board.ID, "c")

	order := []string{c.ID, a.ID, b.ID}
	if err := f.store.ReorderBoardLists(f.ctx, board.ID, order); err != nil {
		f.t.Fatalf("reorder: %v", err)
	}
	assertIDs(f.t, "board lists", f.boardLists(board.ID), order)

	lists, err := f.store.ListListsByBoard(f.ctx, board.ID)
	if err != nil {
		f.t.Fatalf("list lists: %v", err)
	}
	if len(lists) != 3 || lists[0].ID != c.ID {
		f.t.Fatalf("ListListsByBoard ignored new order: %+v", lists)
	}
}

func testReorderRejects(f fixture) {
	user := f.user()
	board := f.board(user.ID, "b")
	a := f.list(board.ID, "a")
	b := f.list(board.ID, "b")
	other := f.board(user.ID, "other")
	foreign := f.list(other.ID, "foreign")

	for _, order := range [][]string{
		{a.ID},
		{a.ID, b.ID, foreign.ID},
		{a.ID, a.ID},
		{a.ID, foreign.ID},
	} {
		if err := f.store.ReorderBoardLists(f.ctx, board.ID, order); !errors.Is(err, ErrInvalidOrder) {
			f.t.Fatalf("order %v: expected ErrInvalidOrder, got %v", order, err)
		}
	}
	assertIDs(f.t, "board lists", f.boardLists(board.ID), []string{a.ID, b.ID})

	card := f.card(a.ID, "x")
	if err := f.store.ReorderListCards(f.ctx, a.ID, []string{}); !errors.Is(err, ErrInvalidOrder) {
		f.t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	assertIDs(f.t, "list cards", f.listCards(a.ID), []string{card.ID})
}

func testMoveCards(f fixture) {
	user := f.user()
	board := f.board(user.ID, "b")
	todo := f.list(board.ID, "todo")
	done := f.list(board.ID, "done")
	c1 := f.card(todo.ID, "one")
	c2 := f.card(todo.ID, "two")
	c3 := f.card(done.ID, "three")

	if err := f.store.MoveCards(f.ctx, todo.ID, done.ID, []string{c2.ID}, []string{c3.ID, c1.ID}); err != nil {
		f.t.Fatalf("move: %v", err)
	}

	assertIDs(f.t, "origin cards", f.listCards(todo.ID), []string{c2.ID})
	assertIDs(f.t, "destination cards", f.listCards(done.ID), []string{c3.ID, c1.ID})
	moved, err := f.store.GetCard(f.ctx, c1.ID)
	if err != nil {
		f.t.Fatalf("get card: %v", err)
	}
	if moved.ListID != done.ID {
		f.t.Fatalf("moved card parent = %s, want %s", moved.ListID, done.ID)
	}
	stayed, _ := f.store.GetCard(f.ctx, c2.ID)
	if stayed.ListID != todo.ID {
		f.t.Fatalf("unmoved card parent = %s, want %s", stayed.ListID, todo.ID)
	}

	// Emptying a list is a legal move.
	if err := f.store.MoveCards(f.ctx, todo.ID, done.ID, []string{}, []string{c3.ID, c2.ID, c1.ID}); err != nil {
		f.t.Fatalf("move last card: %v", err)
	}
	assertIDs(f.t, "emptied origin", f.listCards(todo.ID), nil)
}

func testMoveRejects(f fixture) {
	user := f.user()
	board := f.board(user.ID, "b")
	todo := f.list(board.ID, "todo")
	done := f.list(board.ID, "done")
	c1 := f.card(todo.ID, "one")
	c2 := f.card(done.ID, "two")

	err := f.store.MoveCards(f.ctx, todo.ID, done.ID, []string{}, []string{c2.ID})
	if !errors.Is(err, ErrInvalidOrder) {
		f.t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	assertIDs(f.t, "origin cards", f.listCards(todo.ID), []string{c1.ID})
	assertIDs(f.t, "destination cards", f.listCards(done.ID), []string{c2.ID})
	card, _ := f.store.GetCard(f.ctx, c1.ID)
	if card.ListID != todo.ID {
		f.t.Fatalf("failed move reparented card to %s", card.ListID)
	}

	if err := f.store.MoveCards(f.ctx, todo.ID, "missing", []string{}, []string{c1.ID}); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("expected sql.ErrNoRows for missing destination, got %v", err)
	}
}

func testMoveSameList(f fixture) {
	user := f.user()
	board := f.board(user.ID, "b")
	list := f.list(board.ID, "todo")
	c1 := f.card(list.ID, "one")
	c2 := f.card(list.ID, "two")

	if err := f.store.MoveCards(f.ctx, list.ID, list.ID, []string{c1.ID, c2.ID}, []string{c2.ID, c1.ID}); err != nil {
		f.t.Fatalf("same-list move: %v", err)
	}
	assertIDs(f.t, "list cards", f.listCards(list.ID), []string{c2.ID, c1.ID})
}

func testDeleteBoardCascades(f fixture) {
	user := f.user()
	keep := f.board(user.ID, "keep")
	board := f.board(user.ID, "drop")
	list := f.list(board.ID, "todo")
	card := f.card(list.ID, "one")

	if err := f.store.DeleteBoard(f.ctx, board.ID); err != nil {
		f.t.Fatalf("delete board: %v", err)
	}
	if _, err := f.store.GetBoard(f.ctx, board.ID); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("board still present: %v", err)
	}
	if _, err := f.store.GetList(f.ctx, list.ID); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("list still present: %v", err)
	}
	if _, err := f.store.GetCard(f.ctx, card.ID); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("card still present: %v", err)
	}
	owner, _ := f.store.GetUserByID(f.ctx, user.ID)
	assertIDs(f.t, "owner boards", owner.BoardIDs, []string{keep.ID})

	if err := f.store.DeleteBoard(f.ctx, board.ID); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("second delete: expected sql.ErrNoRows, got %v", err)
	}
}

func testDeleteListCascades(f fixture) {
	user := f.user()
	board := f.board(user.ID, "b")
	keep := f.list(board.ID, "keep")
	list := f.list(board.ID, "drop")
	card := f.card(list.ID, "one")

	if err := f.store.DeleteList(f.ctx, list.ID); err != nil {
		f.t.Fatalf("delete list: %v", err)
	}
	assertIDs(f.t, "board lists", f.boardLists(board.ID), []string{keep.ID})
	if _, err := f.store.GetCard(f.ctx, card.ID); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("card still present: %v", err)
	}
}

func testDeleteCard(f fixture) {
	user := f.user()
	board := f.board(user.ID, "b")
	list := f.list(board.ID, "todo")
	c1 := f.card(list.ID, "one")
	c2 := f.card(list.ID, "two")

	if err := f.store.DeleteCard(f.ctx, c1.ID); err != nil {
		f.t.Fatalf("delete card: %v", err)
	}
	assertIDs(f.t, "list cards", f.listCards(list.ID), []string{c2.ID})
	if err := f.store.DeleteCard(f.ctx, c1.ID); !errors.Is(err, sql.ErrNoRows) {
		f.t.Fatalf("second delete: expected sql.ErrNoRows, got %v", err)
	}
}

func testRevokedTokens(f fixture) {
	jti := util.NewID("jti")
	revoked, err := f.store.IsTokenRevoked(f.ctx, jti)
	if err != nil || revoked {
		f.t.Fatalf("fresh token revoked=%v err=%v", revoked, err)
	}
	if err := f.store.RevokeToken(f.ctx, jti, time.Now().Add(time.Hour)); err != nil {
		f.t.Fatalf("revoke: %v", err)
	}
	revoked, err = f.store.IsTokenRevoked(f.ctx, jti)
	if err != nil || !revoked {
		f.t.Fatalf("revoked token revoked=%v err=%v", revoked, err)
	}

	expired := util.NewID("jti")
	if err := f.store.RevokeToken(f.ctx, expired, time.Now().Add(-time.Minute)); err != nil {
		f.t.Fatalf("revoke expired: %v", err)
	}
	if revoked, _ := f.store.IsTokenRevoked(f.ctx, expired); revoked {
		f.t.Fatal("expired deny-list entry should not count as revoked")
	}
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"testing"

	"taskboard/api/internal/store"
)

func TestRenameBoardKeepsLists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, err := svc.CreateBoard(ctx, u1, TitleInput{Title: "Sprint 1"})
	if err != nil {
		t.Fatalf("CreateBoard() error = %v", err)
	}
	if _, err := svc.RenameBoard(ctx, u1, board.ID, TitleInput{Title: "Sprint 1 Final"}); err != nil {
		t.Fatalf("RenameBoard() error = %v", err)
	}

	got, err := svc.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("GetBoard() error = %v", err)
	}
	if got.Title != "Sprint 1 Final" {
		t.Fatalf("title = %q", got.Title)
	}
	if len(got.ListIDs) != 0 {
		t.Fatalf("list count = %d, want 0", len(got.ListIDs))
	}
}

func TestReorderCardsScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Board"})
	list, err := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "Todo"})
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	a, _ := svc.CreateCard(ctx, u1, list.ID, TitleInput{Title: "A"})
	b, _ := svc.CreateCard(ctx, u1, list.ID, TitleInput{Title: "B"})

	if _, err := svc.ReorderCards(ctx, u1, list.ID, ReorderCardsInput{Cards: []string{b.ID, a.ID}}); err != nil {
		t.Fatalf("ReorderCards() error = %v", err)
	}

	got, _ := svc.GetList(ctx, list.ID)
	if !slices.Equal(got.CardIDs, []string{b.ID, a.ID}) {
		t.Fatalf("cards = %v, want [%s %s]", got.CardIDs, b.ID, a.ID)
	}
}

func TestReorderWithCurrentOrderIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Board"})
	l1, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "One"})
	l2, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "Two"})
	before, _ := svc.GetBoard(ctx, board.ID)

	after, err := svc.ReorderLists(ctx, u1, board.ID, ReorderListsInput{Lists: []string{l1.ID, l2.ID}})
	if err != nil {
		t.Fatalf("ReorderLists() error = %v", err)
	}
	if !slices.Equal(before.ListIDs, after.ListIDs) || before.Title != after.Title || before.OwnerID != after.OwnerID {
		t.Fatalf("state changed: before=%+v after=%+v", before, after)
	}
}

func TestMoveCardScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Board"})
	l1, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L1"})
	l2, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L2"})
	c1, _ := svc.CreateCard(ctx, u1, l1.ID, TitleInput{Title: "C1"})

	err := svc.MoveCards(ctx, u1, MoveCardsInput{
		ListOfOriginID:          l1.ID,
		DestinationListID:       l2.ID,
		UpdatedOriginCards:      []string{},
		UpdatedDestinationCards: []string{c1.ID},
	})
	if err != nil {
		t.Fatalf("MoveCards() error = %v", err)
	}

	origin, _ := svc.GetList(ctx, l1.ID)
	dest, _ := svc.GetList(ctx, l2.ID)
	card, _ := svc.GetCard(ctx, c1.ID)
	if len(origin.CardIDs) != 0 {
		t.Fatalf("origin cards = %v, want empty", origin.CardIDs)
	}
	if !slices.Equal(dest.CardIDs, []string{c1.ID}) {
		t.Fatalf("destination cards = %v", dest.CardIDs)
	}
	if card.ListID != l2.ID {
		t.Fatalf("card listOfOrigin = %s, want %s", card.ListID, l2.ID)
	}
}

func TestMoveWithinOneListRoutesToReorder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Board"})
	list, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L"})
	a, _ := svc.CreateCard(ctx, u1, list.ID, TitleInput{Title: "A"})
	b, _ := svc.CreateCard(ctx, u1, list.ID, TitleInput{Title: "B"})

	// Origin cards are ignored on the same-list path.
	err := svc.MoveCards(ctx, u1, MoveCardsInput{
		ListOfOriginID:          list.ID,
		DestinationListID:       list.ID,
		UpdatedOriginCards:      []string{a.ID, b.ID},
		UpdatedDestinationCards: []string{b.ID, a.ID},
	})
	if err != nil {
		t.Fatalf("MoveCards() error = %v", err)
	}
	got, _ := svc.GetList(ctx, list.ID)
	if !slices.Equal(got.CardIDs, []string{b.ID, a.ID}) {
		t.Fatalf("cards = %v", got.CardIDs)
	}
}

func TestMoveRequiresOwnershipOfBothLists(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")
	u2 := signup(t, svc, "u2")

	mine, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Mine"})
	theirs, _ := svc.CreateBoard(ctx, u2, TitleInput{Title: "Theirs"})
	src, _ := svc.CreateList(ctx, u1, mine.ID, TitleInput{Title: "Src"})
	dst, _ := svc.CreateList(ctx, u2, theirs.ID, TitleInput{Title: "Dst"})
	card, _ := svc.CreateCard(ctx, u1, src.ID, TitleInput{Title: "C"})

	err := svc.MoveCards(ctx, u1, MoveCardsInput{
		ListOfOriginID:          src.ID,
		DestinationListID:       dst.ID,
		UpdatedOriginCards:      []string{},
		UpdatedDestinationCards: []string{card.ID},
	})
	requireDomainError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")

	got, _ := svc.GetCard(ctx, card.ID)
	if got.ListID != src.ID {
		t.Fatalf("card moved despite denial: %s", got.ListID)
	}
}

func TestMoveRejectsLostCards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Board"})
	l1, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L1"})
	l2, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L2"})
	c1, _ := svc.CreateCard(ctx, u1, l1.ID, TitleInput{Title: "C1"})

	err := svc.MoveCards(ctx, u1, MoveCardsInput{
		ListOfOriginID:          l1.ID,
		DestinationListID:       l2.ID,
		UpdatedOriginCards:      []string{},
		UpdatedDestinationCards: []string{},
	})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "INVALID_ORDER")

	origin, _ := svc.GetList(ctx, l1.ID)
	if !slices.Equal(origin.CardIDs, []string{c1.ID}) {
		t.Fatalf("origin changed after rejected move: %v", origin.CardIDs)
	}
}

func TestStrangerCannotRenameBoard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")
	u2 := signup(t, svc, "u2")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Original"})
	_, err := svc.RenameBoard(ctx, u2, board.ID, TitleInput{Title: "Hijacked"})
	domainErr := requireDomainError(t, err, http.StatusUnauthorized, "UNAUTHORIZED")
	if domainErr.Message != "You are not allowed to edit this board." {
		t.Fatalf("message = %q", domainErr.Message)
	}

	got, _ := svc.GetBoard(ctx, board.ID)
	if got.Title != "Original" {
		t.Fatalf("title changed to %q", got.Title)
	}
}

func TestMissingEntityIsNotFoundForAnyUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u2 := signup(t, svc, "u2")

	cases := map[string]func() error{
		"rename board": func() error { _, err := svc.RenameBoard(ctx, u2, "missing", TitleInput{Title: "x"}); return err },
		"reorder lists": func() error {
			_, err := svc.ReorderLists(ctx, u2, "missing", ReorderListsInput{Lists: []string{}})
			return err
		},
		"delete board": func() error { return svc.DeleteBoard(ctx, u2, "missing") },
		"create list":  func() error { _, err := svc.CreateList(ctx, u2, "missing", TitleInput{Title: "x"}); return err },
		"rename list":  func() error { _, err := svc.RenameList(ctx, u2, "missing", TitleInput{Title: "x"}); return err },
		"delete list":  func() error { return svc.DeleteList(ctx, u2, "missing") },
		"create card":  func() error { _, err := svc.CreateCard(ctx, u2, "missing", TitleInput{Title: "x"}); return err },
		"rename card":  func() error { _, err := svc.RenameCard(ctx, u2, "missing", TitleInput{Title: "x"}); return err },
		"delete card":  func() error { return svc.DeleteCard(ctx, u2, "missing") },
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			requireDomainError(t, call(), http.StatusNotFound, "NOT_FOUND")
		})
	}
}

func TestMoveReportsMissingListBeforeForeignList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")
	u2 := signup(t, svc, "u2")

	theirs, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Theirs"})
	foreign, _ := svc.CreateList(ctx, u1, theirs.ID, TitleInput{Title: "Foreign"})

	err := svc.MoveCards(ctx, u2, MoveCardsInput{
		ListOfOriginID:          foreign.ID,
		DestinationListID:       "missing",
		UpdatedOriginCards:      []string{},
		UpdatedDestinationCards: []string{},
	})
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestValidationPrecedesLookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	// Targets do not exist, but the malformed body wins.
	_, err := svc.RenameBoard(ctx, u1, "missing", TitleInput{Title: "   "})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	_, err = svc.ReorderLists(ctx, u1, "missing", ReorderListsInput{})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	err = svc.MoveCards(ctx, u1, MoveCardsInput{ListOfOriginID: "a", DestinationListID: "b"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestDeleteBoardCascades(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	keep, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Keep"})
	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "Drop"})
	list, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L"})
	card, _ := svc.CreateCard(ctx, u1, list.ID, TitleInput{Title: "C"})

	if err := svc.DeleteBoard(ctx, u1, board.ID); err != nil {
		t.Fatalf("DeleteBoard() error = %v", err)
	}

	user, _ := ms.GetUserByID(ctx, u1.UserID)
	if !slices.Equal(user.BoardIDs, []string{keep.ID}) {
		t.Fatalf("owner boards = %v, want [%s]", user.BoardIDs, keep.ID)
	}
	if _, err := ms.GetList(ctx, list.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("orphaned list remains: %v", err)
	}
	if _, err := ms.GetCard(ctx, card.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("orphaned card remains: %v", err)
	}
}

func TestChildLookupsDistinguishEmptyFromMissing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	_, err := svc.BoardsByUser(ctx, u1.UserID)
	requireDomainError(t, err, http.StatusNotFound, "NO_CHILDREN")
	_, err = svc.BoardsByUser(ctx, "missing")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "B"})
	_, err = svc.ListsByBoard(ctx, board.ID)
	requireDomainError(t, err, http.StatusNotFound, "NO_CHILDREN")
	_, err = svc.ListsByBoard(ctx, "missing")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	list, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L"})
	_, err = svc.CardsByList(ctx, list.ID)
	requireDomainError(t, err, http.StatusNotFound, "NO_CHILDREN")
	_, err = svc.CardsByList(ctx, "missing")
	requireDomainError(t, err, http.StatusNotFound, "NOT_FOUND")

	boards, err := svc.BoardsByUser(ctx, u1.UserID)
	if err != nil || len(boards) != 1 {
		t.Fatalf("BoardsByUser() = %v, %v", boards, err)
	}
}

func TestSignupAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("Signup() error = %v", err)
	}
	_, err := svc.Signup(ctx, SignupInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "DUPLICATE_EMAIL")

	_, err = svc.Signup(ctx, SignupInput{Name: "Bo", Email: "bo@example.com", Password: "short"})
	requireDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")

	result, err := svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.Name != "Ada" || result.Token == "" {
		t.Fatalf("unexpected login result: %+v", result)
	}

	_, err = svc.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong-password"})
	requireDomainError(t, err, http.StatusForbidden, "AUTH_FAILED")
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	session := signup(t, svc, "u1")

	if err := svc.Logout(ctx, session); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
}

func TestPersonalDataReturnsNestedBoards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "B"})
	list, _ := svc.CreateList(ctx, u1, board.ID, TitleInput{Title: "L"})
	card, _ := svc.CreateCard(ctx, u1, list.ID, TitleInput{Title: "C"})

	data, err := svc.PersonalData(ctx, u1)
	if err != nil {
		t.Fatalf("PersonalData() error = %v", err)
	}
	if len(data.Boards) != 1 || len(data.Boards[0].Lists) != 1 || len(data.Boards[0].Lists[0].Cards) != 1 {
		t.Fatalf("unexpected tree: %+v", data.Boards)
	}
	if data.Boards[0].Lists[0].Cards[0].ID != card.ID {
		t.Fatalf("card id = %s, want %s", data.Boards[0].Lists[0].Cards[0].ID, card.ID)
	}
	if data.Token != u1.Token {
		t.Fatal("expected presented token to be echoed")
	}
}

type failingStore struct {
	*store.MemoryStore
	err error
}

func (f failingStore) UpdateBoardTitle(context.Context, string, string) error {
	return f.err
}

func (f failingStore) Ping(context.Context) error {
	return f.err
}

func TestStoreFailureIsServerError(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := New(testConfig(), failingStore{MemoryStore: ms, err: errors.New("connection reset")})
	ctx := context.Background()
	u1 := signup(t, svc, "u1")

	board, _ := svc.CreateBoard(ctx, u1, TitleInput{Title: "B"})
	_, err := svc.RenameBoard(ctx, u1, board.ID, TitleInput{Title: "C"})
	domainErr := requireDomainError(t, err, http.StatusInternalServerError, "SERVER_ERROR")
	if domainErr.Message != "Something went wrong, could not update board." {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

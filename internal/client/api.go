// Package client talks to the taskboard HTTP API and keeps a mirror.Store in
// step with it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"taskboard/api/internal/mirror"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return e.Message
}

type AuthResult struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Token  string `json:"token"`
}

type PersonalData struct {
	User   mirror.User
	Boards []mirror.Board
	Token  string
}

// MoveRequest is the body of a cross-list card move.
type MoveRequest struct {
	ListOfOriginID          string   `json:"listOfOriginId"`
	DestinationListID       string   `json:"destinationListId"`
	UpdatedOriginCards      []string `json:"updatedOriginCards"`
	UpdatedDestinationCards []string `json:"updatedDestinationCards"`
}

// API is a thin HTTP client. The bearer token is shared by every call.
type API struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// NewAPI builds a client for baseURL, e.g. "http://localhost:5000/api". A nil
// httpClient uses a fresh http.Client with no timeout.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *API) Signup(ctx context.Context, name, email, password string) (AuthResult, error) {
	var out AuthResult
	err := a.do(ctx, http.MethodPost, "/users/signup", map[string]string{
		"name": name, "email": email, "password": password,
	}, &out)
	return out, err
}

func (a *API) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	err := a.do(ctx, http.MethodPost, "/users/login", map[string]string{
		"email": email, "password": password,
	}, &out)
	return out, err
}

func (a *API) Logout(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/users/logout", nil, nil)
}

func (a *API) PersonalData(ctx context.Context) (PersonalData, error) {
	var out struct {
		User struct {
			mirror.User
			Boards []mirror.Board `json:"boards"`
		} `json:"user"`
		Token string `json:"token"`
	}
	if err := a.do(ctx, http.MethodGet, "/users/getPersonalData", nil, &out); err != nil {
		return PersonalData{}, err
	}
	return PersonalData{User: out.User.User, Boards: out.User.Boards, Token: out.Token}, nil
}

type boardJSON struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Owner string `json:"owner"`
}

type listJSON struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	BoardOfOrigin string `json:"boardOfOrigin"`
}

func (a *API) CreateBoard(ctx context.Context, title string) (mirror.Board, error) {
	var out struct {
		Board boardJSON `json:"board"`
	}
	if err := a.do(ctx, http.MethodPost, "/boards", titleBody(title), &out); err != nil {
		return mirror.Board{}, err
	}
	// A new board has no lists yet.
	return mirror.Board{ID: out.Board.ID, Title: out.Board.Title, Owner: out.Board.Owner, Lists: []mirror.List{}}, nil
}

func (a *API) RenameBoard(ctx context.Context, boardID, title string) error {
	return a.do(ctx, http.MethodPatch, "/boards/title/"+url.PathEscape(boardID), titleBody(title), nil)
}

func (a *API) ReorderLists(ctx context.Context, boardID string, listIDs []string) error {
	return a.do(ctx, http.MethodPatch, "/boards/lists/"+url.PathEscape(boardID), map[string][]string{"lists": nonNil(listIDs)}, nil)
}

func (a *API) DeleteBoard(ctx context.Context, boardID string) error {
	return a.do(ctx, http.MethodDelete, "/boards/"+url.PathEscape(boardID), nil, nil)
}

func (a *API) CreateList(ctx context.Context, boardID, title string) (mirror.List, error) {
	var out struct {
		List listJSON `json:"list"`
	}
	if err := a.do(ctx, http.MethodPost, "/lists/"+url.PathEscape(boardID), titleBody(title), &out); err != nil {
		return mirror.List{}, err
	}
	return mirror.List{ID: out.List.ID, Title: out.List.Title, BoardOfOrigin: out.List.BoardOfOrigin, Cards: []mirror.Card{}}, nil
}

func (a *API) RenameList(ctx context.Context, listID, title string) error {
	return a.do(ctx, http.MethodPatch, "/lists/title/"+url.PathEscape(listID), titleBody(title), nil)
}

func (a *API) ReorderCards(ctx context.Context, listID string, cardIDs []string) error {
	return a.do(ctx, http.MethodPatch, "/lists/cards/"+url.PathEscape(listID), map[string][]string{"cards": nonNil(cardIDs)}, nil)
}

func (a *API) MoveCards(ctx context.Context, req MoveRequest) error {
	req.UpdatedOriginCards = nonNil(req.UpdatedOriginCards)
	req.UpdatedDestinationCards = nonNil(req.UpdatedDestinationCards)
	return a.do(ctx, http.MethodPatch, "/lists/shuffleCards", req, nil)
}

func (a *API) DeleteList(ctx context.Context, listID string) error {
	return a.do(ctx, http.MethodDelete, "/lists/"+url.PathEscape(listID), nil, nil)
}

func (a *API) CreateCard(ctx context.Context, listID, title string) (mirror.Card, error) {
	var out struct {
		Card mirror.Card `json:"card"`
	}
	if err := a.do(ctx, http.MethodPost, "/cards/"+url.PathEscape(listID), titleBody(title), &out); err != nil {
		return mirror.Card{}, err
	}
	return out.Card, nil
}

func (a *API) RenameCard(ctx context.Context, cardID, title string) error {
	return a.do(ctx, http.MethodPatch, "/cards/"+url.PathEscape(cardID), titleBody(title), nil)
}

func (a *API) DeleteCard(ctx context.Context, cardID string) error {
	return a.do(ctx, http.MethodDelete, "/cards/"+url.PathEscape(cardID), nil, nil)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var envelope struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func titleBody(title string) map[string]string {
	return map[string]string{"title": title}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

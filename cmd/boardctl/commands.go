package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"taskboard/api/internal/client"
	"taskboard/api/internal/mirror"
)

// errReported means the failure was already printed as a notification.
var errReported = errors.New("reported")

type cli struct {
	apiURL    string
	statePath string
	out       io.Writer
	errOut    io.Writer

	mu    sync.Mutex
	notes []client.Notification
}

func (c *cli) Notify(n client.Notification) {
	c.mu.Lock()
	c.notes = append(c.notes, n)
	c.mu.Unlock()
}

type runFunc func(ctx context.Context, s *client.Session, args []string) error

// run opens a session, restoring the stored token when auth is set, runs fn
// and waits for background persistence before reporting failures.
func (c *cli) run(auth bool, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s := client.NewSession(
			client.NewAPI(c.apiURL, nil),
			client.WithTokenStore(client.NewFileTokenStore(c.statePath)),
			client.WithNotifier(c),
		)
		if auth {
			if err := s.Restore(ctx); err != nil {
				if errors.Is(err, client.ErrNotSignedIn) {
					return errors.New("not signed in, run `boardctl login` first")
				}
				return c.report(err)
			}
		}
		err := fn(ctx, s, args)
		s.Flush()
		return c.report(err)
	}
}

func (c *cli) report(err error) error {
	c.mu.Lock()
	notes := c.notes
	c.notes = nil
	c.mu.Unlock()

	if len(notes) == 0 {
		return err
	}
	for _, n := range notes {
		fmt.Fprintln(c.errOut, "error:", n.Message)
	}
	return errReported
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Manage task boards from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&c.apiURL, "api", envOr("BOARDCTL_API_URL", "http://localhost:5000/api"), "API base URL")
	root.PersistentFlags().StringVar(&c.statePath, "state", envOr("BOARDCTL_STATE", client.DefaultStatePath()), "path of the session state file")

	root.AddCommand(c.signupCmd(), c.loginCmd(), c.logoutCmd(), c.whoamiCmd(), c.boardsCmd(), c.showCmd())
	root.AddCommand(c.boardCmd(), c.listCmd(), c.cardCmd())
	return root
}

func (c *cli) signupCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: c.run(false, func(ctx context.Context, s *client.Session, _ []string) error {
			if err := s.Signup(ctx, name, email, password); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Welcome, %s\n", name)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (at least 6 characters)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: c.run(false, func(ctx context.Context, s *client.Session, _ []string) error {
			if err := s.Login(ctx, email, password); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Welcome, %s\n", s.State().User.Name)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored session token",
		Args:  cobra.NoArgs,
		RunE: c.run(true, func(ctx context.Context, s *client.Session, _ []string) error {
			if err := s.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Logged out!")
			return nil
		}),
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: c.run(true, func(_ context.Context, s *client.Session, _ []string) error {
			u := s.State().User
			fmt.Fprintf(c.out, "%s <%s> (%s)\n", u.Name, u.Email, u.ID)
			return nil
		}),
	}
}

func (c *cli) boardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List your boards",
		Args:  cobra.NoArgs,
		RunE: c.run(true, func(_ context.Context, s *client.Session, _ []string) error {
			boards := s.State().AllBoards
			if len(boards) == 0 {
				fmt.Fprintln(c.out, "No boards yet.")
				return nil
			}
			for _, b := range boards {
				fmt.Fprintf(c.out, "%s\t%s\t%d lists\n", b.ID, b.Title, len(b.Lists))
			}
			return nil
		}),
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <boardId>",
		Short: "Print a board with its lists and cards",
		Args:  cobra.ExactArgs(1),
		RunE: c.run(true, func(_ context.Context, s *client.Session, args []string) error {
			if err := s.OpenBoard(args[0]); err != nil {
				return err
			}
			printBoard(c.out, *s.State().Current)
			return nil
		}),
	}
}

func printBoard(w io.Writer, b mirror.Board) {
	fmt.Fprintf(w, "%s (%s)\n", b.Title, b.ID)
	for _, l := range b.Lists {
		fmt.Fprintf(w, "  %s (%s)\n", l.Title, l.ID)
		for _, card := range l.Cards {
			fmt.Fprintf(w, "    - %s (%s)\n", card.Title, card.ID)
		}
	}
}

func (c *cli) boardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "board", Short: "Create, rename, delete or reorder boards"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "create <title>",
			Args: cobra.MinimumNArgs(1),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				board, err := s.CreateBoard(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, board.ID)
				return nil
			}),
		},
		&cobra.Command{
			Use:  "rename <boardId> <title>",
			Args: cobra.MinimumNArgs(2),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.RenameBoard(ctx, args[0], strings.Join(args[1:], " "))
			}),
		},
		&cobra.Command{
			Use:  "delete <boardId>",
			Args: cobra.ExactArgs(1),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.DeleteBoard(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "reorder <boardId> <listId>...",
			Short: "Set the full order of a board's lists",
			Args:  cobra.MinimumNArgs(1),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.ReorderLists(ctx, args[0], args[1:])
			}),
		},
	)
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "list", Short: "Create, rename, delete or reorder lists"}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "create <boardId> <title>",
			Args: cobra.MinimumNArgs(2),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				list, err := s.CreateList(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, list.ID)
				return nil
			}),
		},
		&cobra.Command{
			Use:  "rename <listId> <title>",
			Args: cobra.MinimumNArgs(2),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.RenameList(ctx, args[0], strings.Join(args[1:], " "))
			}),
		},
		&cobra.Command{
			Use:  "delete <listId>",
			Args: cobra.ExactArgs(1),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.DeleteList(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "reorder <listId> <cardId>...",
			Short: "Set the full order of a list's cards",
			Args:  cobra.MinimumNArgs(1),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.ReorderCards(ctx, args[0], args[1:])
			}),
		},
	)
	return cmd
}

func (c *cli) cardCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "card", Short: "Create, rename, delete or move cards"}

	var index string
	move := &cobra.Command{
		Use:   "move <cardId> <listId>",
		Short: "Move a card to a list, at the end unless --index is given",
		Args:  cobra.ExactArgs(2),
		RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
			ev, boardID, err := moveEvent(s.Mirror(), args[0], args[1], index)
			if err != nil {
				return err
			}
			return s.Drop(ctx, boardID, ev)
		}),
	}
	move.Flags().StringVar(&index, "index", "", "zero-based position in the destination list")

	cmd.AddCommand(
		&cobra.Command{
			Use:  "create <listId> <title>",
			Args: cobra.MinimumNArgs(2),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				card, err := s.CreateCard(ctx, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, card.ID)
				return nil
			}),
		},
		&cobra.Command{
			Use:  "rename <cardId> <title>",
			Args: cobra.MinimumNArgs(2),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.RenameCard(ctx, args[0], strings.Join(args[1:], " "))
			}),
		},
		&cobra.Command{
			Use:  "delete <cardId>",
			Args: cobra.ExactArgs(1),
			RunE: c.run(true, func(ctx context.Context, s *client.Session, args []string) error {
				return s.DeleteCard(ctx, args[0])
			}),
		},
		move,
	)
	return cmd
}

// moveEvent describes dragging cardID into listID as a drop event.
func moveEvent(store *mirror.Store, cardID, listID, index string) (client.DropEvent, string, error) {
	board, source, _, ok := store.FindCard(cardID)
	if !ok {
		return client.DropEvent{}, "", fmt.Errorf("%w: %s", client.ErrUnknownCard, cardID)
	}
	target, ok := board.List(listID)
	if !ok {
		return client.DropEvent{}, "", fmt.Errorf("%w: %s is not on board %s", client.ErrUnknownList, listID, board.ID)
	}

	from := slices.Index(source.CardIDs(), cardID)
	to := len(target.Cards)
	if source.ID == target.ID {
		to--
	}
	if index != "" {
		n, err := strconv.Atoi(index)
		if err != nil {
			return client.DropEvent{}, "", fmt.Errorf("invalid --index %q", index)
		}
		to = n
	}

	return client.DropEvent{
		Type:        client.DropCard,
		DraggableID: cardID,
		Source:      client.Location{DroppableID: source.ID, Index: from},
		Destination: &client.Location{DroppableID: target.ID, Index: to},
	}, board.ID, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

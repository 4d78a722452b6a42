package client

import (
	"errors"
	"fmt"
	"slices"

	"taskboard/api/internal/mirror"
)

type DropType string

const (
	DropList DropType = "list"
	DropCard DropType = "card"
)

// Location is a position inside a droppable container. For list drags the
// container is the board; for card drags it is a list id.
type Location struct {
	DroppableID string
	Index       int
}

// DropEvent is the result of a finished drag. A nil Destination means the
// item was dropped outside any container.
type DropEvent struct {
	Type        DropType
	DraggableID string
	Source      Location
	Destination *Location
}

var ErrInvalidDrop = errors.New("invalid drop")

// translateDrop turns a drop on board into the mirror action it implies. It
// returns a nil action for drops that change nothing.
func translateDrop(board mirror.Board, ev DropEvent) (mirror.Action, error) {
	if ev.Destination == nil {
		return nil, nil
	}
	dest := *ev.Destination

	switch ev.Type {
	case DropList:
		ids, err := splice(board.ListIDs(), ev.DraggableID, ev.Source.Index, dest.Index)
		if err != nil {
			return nil, err
		}
		return mirror.ShuffleLists{BoardID: board.ID, ListIDs: ids}, nil

	case DropCard:
		source, ok := board.List(ev.Source.DroppableID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown list %s", ErrInvalidDrop, ev.Source.DroppableID)
		}
		if ev.Source.DroppableID == dest.DroppableID {
			ids, err := splice(source.CardIDs(), ev.DraggableID, ev.Source.Index, dest.Index)
			if err != nil {
				return nil, err
			}
			return mirror.MoveCardWithinList{BoardID: board.ID, ListID: source.ID, CardIDs: ids}, nil
		}

		target, ok := board.List(dest.DroppableID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown list %s", ErrInvalidDrop, dest.DroppableID)
		}
		originIDs, err := splice(source.CardIDs(), ev.DraggableID, ev.Source.Index, -1)
		if err != nil {
			return nil, err
		}
		destIDs := target.CardIDs()
		if dest.Index < 0 || dest.Index > len(destIDs) {
			return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidDrop, dest.Index)
		}
		destIDs = slices.Insert(destIDs, dest.Index, ev.DraggableID)
		return mirror.ShuffleCards{
			BoardID:            board.ID,
			OriginListID:       source.ID,
			DestinationListID:  target.ID,
			OriginCardIDs:      originIDs,
			DestinationCardIDs: destIDs,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidDrop, ev.Type)
	}
}

// splice removes id from position from and, unless to is negative,
// reinserts it at position to.
func splice(ids []string, id string, from, to int) ([]string, error) {
	if from < 0 || from >= len(ids) || ids[from] != id {
		return nil, fmt.Errorf("%w: %s is not at index %d", ErrInvalidDrop, id, from)
	}
	out := slices.Delete(slices.Clone(ids), from, from+1)
	if to < 0 {
		return out, nil
	}
	if to > len(out) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidDrop, to)
	}
	return slices.Insert(out, to, id), nil
}

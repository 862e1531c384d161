package scraper

import (
	"github.com/aluiziolira/go-genre-books/genre"
	"github.com/aluiziolira/go-genre-books/models"
)

type quotaState int

const (
	quotaOpen quotaState = iota
	quotaClosed
)

type quota struct {
	count  int
	state  quotaState
	reason string
}

// quotaBoard tracks OPEN/CLOSED per allowed genre. A closed genre never
// reopens and never accepts another record.
type quotaBoard struct {
	order  []string
	target int
	quotas map[string]*quota
}

func newQuotaBoard(names []string, target int) *quotaBoard {
	b := &quotaBoard{
		order:  names,
		target: target,
		quotas: make(map[string]*quota, len(names)),
	}
	for _, name := range names {
		b.quotas[name] = &quota{}
	}
	return b
}

func (b *quotaBoard) IsOpen(name string) bool {
	q, ok := b.quotas[name]
	return ok && q.state == quotaOpen
}

func (b *quotaBoard) Count(name string) int {
	if q, ok := b.quotas[name]; ok {
		return q.count
	}
	return 0
}

// Accept counts one promoted record. It returns false when the genre is
// unknown or already closed. Reaching the target closes the genre.
func (b *quotaBoard) Accept(name string) bool {
	q, ok := b.quotas[name]
	if !ok || q.state != quotaOpen {
		return false
	}
	q.count++
	if q.count >= b.target {
		q.state = quotaClosed
		q.reason = models.ReasonReachedTarget
	}
	return true
}

// ForceClose closes an open genre below target. Closed genres keep their
// original reason.
func (b *quotaBoard) ForceClose(name, reason string) {
	q, ok := b.quotas[name]
	if !ok || q.state != quotaOpen {
		return
	}
	q.state = quotaClosed
	q.reason = reason
}

func (b *quotaBoard) AllClosed() bool {
	for _, q := range b.quotas {
		if q.state == quotaOpen {
			return false
		}
	}
	return true
}

// ClosedOverlap returns a closed genre whose name contains, or is contained
// in, name. Disjoint genres that merely share a word are caught too.
func (b *quotaBoard) ClosedOverlap(name string) (string, bool) {
	for _, other := range b.order {
		if other == name || b.quotas[other].state != quotaClosed {
			continue
		}
		if genre.Overlaps(other, name) {
			return other, true
		}
	}
	return "", false
}

// CloseRemaining closes every open genre with reason.
func (b *quotaBoard) CloseRemaining(reason string) []string {
	var closed []string
	for _, name := range b.order {
		if b.IsOpen(name) {
			b.ForceClose(name, reason)
			closed = append(closed, name)
		}
	}
	return closed
}

func (b *quotaBoard) Report() []models.GenreReport {
	out := make([]models.GenreReport, 0, len(b.order))
	for _, name := range b.order {
		q := b.quotas[name]
		shortfall := b.target - q.count
		if shortfall < 0 {
			shortfall = 0
		}
		out = append(out, models.GenreReport{
			Genre:     name,
			Count:     q.count,
			Target:    b.target,
			Reason:    q.reason,
			Shortfall: shortfall,
		})
	}
	return out
}

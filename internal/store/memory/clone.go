package memory

import (
	"time"

	"campuschat/internal/models"
)

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneUser(u *models.User) *models.User {
	cp := *u
	return &cp
}

func cloneChat(c *models.Chat) *models.Chat {
	cp := *c
	cp.Members = cloneStrings(c.Members)
	cp.Admins = cloneStrings(c.Admins)
	cp.Muted = cloneStrings(c.Muted)
	cp.Pinned = cloneStrings(c.Pinned)
	cp.Archived = cloneStrings(c.Archived)
	cp.PinnedMessages = cloneStrings(c.PinnedMessages)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	if c.Unread != nil {
		cp.Unread = make(map[string]int, len(c.Unread))
		for k, v := range c.Unread {
			cp.Unread[k] = v
		}
	}
	if c.Typing != nil {
		cp.Typing = make(map[string]time.Time, len(c.Typing))
		for k, v := range c.Typing {
			cp.Typing[k] = v
		}
	}
	return &cp
}

func cloneMessage(m *models.Message) *models.Message {
	cp := *m
	cp.ReadBy = cloneStrings(m.ReadBy)
	cp.StarredBy = cloneStrings(m.StarredBy)
	cp.DeletedFor = cloneStrings(m.DeletedFor)
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		cp.ReplyTo = &r
	}
	if m.ForwardedFrom != nil {
		f := *m.ForwardedFrom
		cp.ForwardedFrom = &f
	}
	if m.EditedAt != nil {
		t := *m.EditedAt
		cp.EditedAt = &t
	}
	return &cp
}

func cloneCall(c *models.Call) *models.Call {
	cp := *c
	if c.Offer != nil {
		o := *c.Offer
		cp.Offer = &o
	}
	if c.Answer != nil {
		a := *c.Answer
		cp.Answer = &a
	}
	cp.CallerCandidates = append([]models.ICECandidate(nil), c.CallerCandidates...)
	cp.ReceiverCandidates = append([]models.ICECandidate(nil), c.ReceiverCandidates...)
	if c.AnsweredAt != nil {
		t := *c.AnsweredAt
		cp.AnsweredAt = &t
	}
	if c.EndedAt != nil {
		t := *c.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

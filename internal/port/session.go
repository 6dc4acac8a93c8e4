package port

import "ragchat/internal/domain"

// SessionStore keeps bounded conversational history keyed by session id.
type SessionStore interface {
	Get(id string) (domain.Session, error)
	Append(id string, role domain.Role, content string) error
	Trim(id string, maxTurns int) error
	Save(id string) error
}

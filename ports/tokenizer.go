package ports

import "github.com/Sleepy9988/decent-identity/core"

// Tokenizer converts between sessions and signed bearer tokens.
type Tokenizer interface {
	SessionToAccessToken(session *core.Session) (string, error)
	AccessTokenToSession(token string) (*core.Session, error)
	SessionToRefreshToken(session *core.Session) (string, error)
	RefreshTokenToSession(token string) (*core.Session, error)
}

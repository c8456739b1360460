package providers

import (
	"fmt"
	json "github.com/goccy/go-json"
	tu "github.com/mymmrac/telego/telegoutil"
	"net/http"
	"streamflix/internal/models"
	"streamflix/internal/structures"
	"strconv"
	"strings"
)

const (
	schemeTelegram = "tma "
	schemeBearer   = "bearer "
)

// Identity is the caller resolved from request headers. UserID is empty for anonymous callers.
type Identity struct {
	UserID   string
	Telegram *models.TelegramIdentity
}

type IdentityProviderInterface interface {
	Resolve(r *http.Request) (*Identity, error)
}

type IdentityProvider struct {
	botToken   string
	demoMode   bool
	userHeader string
}

// webAppUser is the "user" field of Telegram WebApp init data.
type webAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
}

func NewIdentityProvider(conf *structures.Config) IdentityProviderInterface {
	header := conf.Auth.UserHeader
	if header == "" {
		header = "X-User-Id"
	}
	return &IdentityProvider{
		botToken:   conf.Auth.BotToken,
		demoMode:   conf.Auth.DemoMode,
		userHeader: header,
	}
}

// Resolve prefers signed Telegram init data. In demo mode a bearer token or the
// user header is taken as the user id verbatim.
func (ip *IdentityProvider) Resolve(r *http.Request) (*Identity, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	lower := strings.ToLower(auth)

	if strings.HasPrefix(lower, schemeTelegram) && ip.botToken != "" {
		return ip.fromInitData(strings.TrimSpace(auth[len(schemeTelegram):]))
	}

	if ip.demoMode {
		if strings.HasPrefix(lower, schemeBearer) {
			if id := strings.TrimSpace(auth[len(schemeBearer):]); id != "" {
				return &Identity{UserID: id}, nil
			}
		}
		if id := strings.TrimSpace(r.Header.Get(ip.userHeader)); id != "" {
			return &Identity{UserID: id}, nil
		}
	}
	return &Identity{}, nil
}

func (ip *IdentityProvider) fromInitData(initData string) (*Identity, error) {
	values, err := tu.ValidateWebAppData(ip.botToken, initData)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrUnauthorized, err)
	}

	var user webAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, fmt.Errorf("%w: init data carries no user", models.ErrUnauthorized)
	}

	id := strconv.FormatInt(user.ID, 10)
	tg := &models.TelegramIdentity{
		ID:       id,
		Username: user.Username,
		PhotoURL: user.PhotoURL,
	}
	if user.Username != "" {
		tg.Handle = "@" + user.Username
	} else {
		tg.Username = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return &Identity{UserID: id, Telegram: tg}, nil
}

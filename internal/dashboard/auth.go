package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"guildwarden/internal/kv"
)

const (
	discordAPIBase  = "https://discord.com/api/v10"
	discordAuthURL  = "https://discord.com/oauth2/authorize"
	discordTokenURL = "https://discord.com/api/oauth2/token"

	permAdministrator = 0x8
	permManageGuild   = 0x20

	stateTTL = 10 * time.Minute
)

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type discordGuild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Owner       bool   `json:"owner"`
	Permissions string `json:"permissions"`
}

func (g discordGuild) manageable() bool {
	if g.Owner {
		return true
	}
	perms, err := strconv.ParseInt(g.Permissions, 10, 64)
	if err != nil {
		return false
	}
	return perms&permAdministrator != 0 || perms&permManageGuild != 0
}

func (s *Server) login(w http.ResponseWriter, req bunrouter.Request) error {
	state := uuid.NewString()
	if err := s.kv.Set(req.Context(), kv.StateKey(state), []byte("1"), stateTTL); err != nil {
		s.logger.Error("Failed to store OAuth state", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	http.Redirect(w, req.Request, s.oauth.AuthCodeURL(state), http.StatusFound)
	return nil
}

func (s *Server) callback(w http.ResponseWriter, req bunrouter.Request) error {
	ctx := req.Context()
	query := req.URL.Query()

	state := query.Get("state")
	if state == "" {
		return writeError(w, http.StatusBadRequest, "Missing OAuth state")
	}
	_, ok, err := s.kv.Take(ctx, kv.StateKey(state))
	if err != nil {
		s.logger.Warn("OAuth state lookup failed", zap.Error(err))
	}
	if err != nil || !ok {
		return writeError(w, http.StatusBadRequest, "Invalid or expired OAuth state")
	}

	code := query.Get("code")
	if code == "" {
		return writeError(w, http.StatusBadRequest, "Missing authorization code")
	}

	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("OAuth code exchange failed", zap.Error(err))
		return writeError(w, http.StatusUnauthorized, "Discord login failed")
	}
	client := s.oauth.Client(ctx, token)

	var user discordUser
	if err := s.fetchDiscord(ctx, client, "/users/@me", &user); err != nil {
		s.logger.Warn("Failed to fetch Discord user", zap.Error(err))
		return writeError(w, http.StatusBadGateway, "Discord API request failed")
	}
	var guilds []discordGuild
	if err := s.fetchDiscord(ctx, client, "/users/@me/guilds", &guilds); err != nil {
		s.logger.Warn("Failed to fetch Discord guilds", zap.String("user_id", user.ID), zap.Error(err))
		return writeError(w, http.StatusBadGateway, "Discord API request failed")
	}

	manageable := make([]string, 0, len(guilds))
	for _, guild := range guilds {
		if guild.manageable() {
			manageable = append(manageable, guild.ID)
		}
	}

	session, err := s.sessions.Create(ctx, user.ID, user.Username, manageable)
	if err != nil {
		s.logger.Error("Failed to create session", zap.Error(err))
		return writeError(w, http.StatusInternalServerError, "Internal server error")
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
	s.logger.Info("Dashboard login", zap.String("user_id", user.ID), zap.Int("guilds", len(manageable)))
	http.Redirect(w, req.Request, s.opts.BaseURL+"/", http.StatusFound)
	return nil
}

func (s *Server) logout(w http.ResponseWriter, req bunrouter.Request) error {
	if cookie, err := req.Cookie(sessionCookie); err == nil {
		_ = s.sessions.Delete(req.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1})
	return writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) fetchDiscord(ctx context.Context, client *http.Client, path string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.APIBase+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return sonic.Unmarshal(body, out)
}

func newOAuthConfig(opts Options) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.BaseURL + "/auth/callback",
		Scopes:       []string{"identify", "guilds"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   opts.AuthURL,
			TokenURL:  opts.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

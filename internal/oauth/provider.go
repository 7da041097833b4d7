package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrNoEmail         = errors.New("provider did not return a verified email")
)

// Identity is what an upstream provider asserts about the signed-in user.
type Identity struct {
	Provider          string
	ProviderAccountID string
	Email             string
	Name              string
	Image             string
	Raw               json.RawMessage
}

type Provider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	// EmailsURL is queried when the profile does not include an email.
	EmailsURL string

	parse func(raw []byte) (Identity, error)
}

func NewGoogle(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		Name: "google",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "email", "profile"},
		},
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		parse:       parseGoogle,
	}
}

func NewGitHub(clientID, clientSecret, redirectURL string) *Provider {
	return &Provider{
		Name: "github",
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoints.GitHub,
			Scopes:       []string{"read:user", "user:email"},
		},
		UserInfoURL: "https://api.github.com/user",
		EmailsURL:   "https://api.github.com/user/emails",
		parse:       parseGitHub,
	}
}

func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state)
}

// Exchange trades the authorization code for a token and fetches the profile.
func (p *Provider) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("exchange code: %w", err)
	}

	client := p.Config.Client(ctx, token)
	raw, err := getJSON(ctx, client, p.UserInfoURL)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch profile: %w", err)
	}

	id, err := p.parse(raw)
	if err != nil {
		return Identity{}, err
	}
	id.Provider = p.Name
	id.Raw = raw

	if id.Email == "" && p.EmailsURL != "" {
		id.Email, err = primaryEmail(ctx, client, p.EmailsURL)
		if err != nil {
			return Identity{}, err
		}
	}
	if id.Email == "" {
		return Identity{}, ErrNoEmail
	}
	return id, nil
}

func getJSON(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return body, nil
}

func parseGoogle(raw []byte) (Identity, error) {
	var p struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Identity{}, fmt.Errorf("decode google profile: %w", err)
	}
	if p.Sub == "" {
		return Identity{}, errors.New("google profile has no subject")
	}

	id := Identity{ProviderAccountID: p.Sub, Name: p.Name, Image: p.Picture}
	if p.EmailVerified {
		id.Email = p.Email
	}
	return id, nil
}

func parseGitHub(raw []byte) (Identity, error) {
	var p struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Identity{}, fmt.Errorf("decode github profile: %w", err)
	}
	if p.ID == 0 {
		return Identity{}, errors.New("github profile has no id")
	}

	name := p.Name
	if name == "" {
		name = p.Login
	}
	return Identity{
		ProviderAccountID: strconv.FormatInt(p.ID, 10),
		Email:             p.Email,
		Name:              name,
		Image:             p.AvatarURL,
	}, nil
}

func primaryEmail(ctx context.Context, client *http.Client, url string) (string, error) {
	raw, err := getJSON(ctx, client, url)
	if err != nil {
		return "", fmt.Errorf("fetch emails: %w", err)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(raw, &emails); err != nil {
		return "", fmt.Errorf("decode emails: %w", err)
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", ErrNoEmail
}

// Registry holds the providers that have credentials configured.
type Registry struct {
	providers map[string]*Provider
}

func NewRegistry(providers ...*Provider) *Registry {
	r := &Registry{providers: make(map[string]*Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name] = p
	}
	return r
}

func (r *Registry) Get(name string) (*Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// NewState returns a random value for the oauth state parameter.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

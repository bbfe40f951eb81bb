package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	githubAuthURL   = "https://github.com/login/oauth/authorize"
	githubTokenURL  = "https://github.com/login/oauth/access_token"
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
)

// GitHub implements Provider against GitHub's OAuth endpoints. GitHub is
// plain OAuth2, not OIDC: no ID token and no nonce echo.
type GitHub struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewGitHub returns a GitHub provider. httpClient may be nil.
func NewGitHub(clientID, clientSecret string, httpClient *http.Client) *GitHub {
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &GitHub{clientID: clientID, clientSecret: clientSecret, httpClient: httpClient}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) BuildAuthorizationURL(req AuthorizationRequest) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("client_id", g.clientID)
	query.Set("redirect_uri", req.RedirectURI)
	query.Set("scope", "read:user user:email")
	query.Set("state", req.State)
	query.Set("code_challenge", req.CodeChallenge)
	query.Set("code_challenge_method", "S256")
	return githubAuthURL + "?" + query.Encode()
}

func (g *GitHub) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("code_verifier", codeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, githubTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github token exchange failed: status %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.AccessToken == "" {
		return nil, errors.New("github token exchange returned no access token")
	}
	return &Tokens{AccessToken: payload.AccessToken}, nil
}

func (g *GitHub) FetchProfile(ctx context.Context, tokens *Tokens) (*Profile, error) {
	var user struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := g.getJSON(ctx, githubUserURL, tokens.AccessToken, &user); err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, errors.New("github profile missing id")
	}

	// The public profile email is often hidden; the emails endpoint carries
	// the verified flag either way.
	email, verified, err := g.primaryEmail(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	if email == "" {
		email = user.Email
	}

	first, last := splitName(user.Name)
	return &Profile{
		ID:            strconv.FormatInt(user.ID, 10),
		Email:         email,
		FirstName:     first,
		LastName:      last,
		EmailVerified: verified,
	}, nil
}

func (g *GitHub) primaryEmail(ctx context.Context, accessToken string) (string, bool, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := g.getJSON(ctx, githubEmailsURL, accessToken, &emails); err != nil {
		return "", false, err
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}
	return "", false, nil
}

func (g *GitHub) getJSON(ctx context.Context, rawURL, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("github request to %s failed: status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

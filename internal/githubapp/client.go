package githubapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"github.com/ealebed/gh-backport-command/internal/config"
)

type Clients struct {
	REST *github.Client
	HTTP *http.Client

	// Token authenticates git over HTTPS. In App mode it is a short-lived
	// installation token.
	Token string
}

// NewClients builds clients from cfg. In App mode installationID selects
// the installation; zero falls back to cfg.InstallationID.
func NewClients(ctx context.Context, cfg *config.Config, installationID int64) (*Clients, error) {
	var (
		httpClient *http.Client
		token      string
	)
	if cfg.AppMode() {
		if installationID == 0 {
			installationID = cfg.InstallationID
		}
		if installationID == 0 {
			return nil, errors.New("no GitHub App installation id in payload or GITHUB_APP_INSTALLATION_ID")
		}
		itr, err := newInstallationTransport(cfg, installationID)
		if err != nil {
			return nil, err
		}
		token, err = itr.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("installation token: %w", err)
		}
		httpClient = &http.Client{Transport: itr}
	} else {
		token = cfg.Token
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	rest, err := newREST(httpClient, cfg.APIURL)
	if err != nil {
		return nil, err
	}
	return &Clients{REST: rest, HTTP: httpClient, Token: token}, nil
}

func newInstallationTransport(cfg *config.Config, installationID int64) (*ghinstallation.Transport, error) {
	itr, err := ghinstallation.New(http.DefaultTransport, cfg.AppID, installationID, cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	if isEnterprise(cfg.APIURL) {
		itr.BaseURL = cfg.APIURL
	}
	return itr, nil
}

func newREST(httpClient *http.Client, apiURL string) (*github.Client, error) {
	rest := github.NewClient(httpClient)
	if !isEnterprise(apiURL) {
		return rest, nil
	}
	rest, err := rest.WithEnterpriseURLs(apiURL, apiURL)
	if err != nil {
		return nil, fmt.Errorf("GITHUB_API_URL %q: %w", apiURL, err)
	}
	return rest, nil
}

func isEnterprise(apiURL string) bool {
	return apiURL != "" && apiURL != config.DefaultAPIURL
}

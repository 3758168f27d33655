package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	hydra "github.com/ory/hydra-client-go/v2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/louisbranch/authgate/internal/platform/timeouts"
)

// LoginRequest is the authorization server's view of an in-flight login.
type LoginRequest struct {
	Challenge string
	// Skip is set when the server already authenticated Subject.
	Skip       bool
	Subject    string
	RequestURL string
	Client     OAuthClient
}

// OAuthClient identifies the application that started the login.
type OAuthClient struct {
	ClientID   string
	ClientName string
}

// AcceptLogin is the body sent when a login succeeds.
type AcceptLogin struct {
	Subject     string `json:"subject"`
	Remember    bool   `json:"remember"`
	RememberFor int64  `json:"remember_for"`
}

// RejectLogin is the body sent when a login is refused.
type RejectLogin struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	StatusCode       int    `json:"status_code"`
}

// Redirect is where the browser continues after accept or reject.
type Redirect struct {
	RedirectTo string `json:"redirect_to"`
}

// Client talks to the authorization server admin API.
type Client interface {
	GetLoginRequest(ctx context.Context, challenge string) (LoginRequest, error)
	AcceptLogin(ctx context.Context, challenge string, body AcceptLogin) (Redirect, error)
	RejectLogin(ctx context.Context, challenge string, body RejectLogin) (Redirect, error)
}

// StatusError reports a non-2xx admin API response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Admin API paths, used in errors.
const (
	loginPath       = "/admin/oauth2/auth/requests/login"
	loginAcceptPath = loginPath + "/accept"
	loginRejectPath = loginPath + "/reject"
)

// AdminClient implements Client with the Hydra admin SDK.
type AdminClient struct {
	api *hydra.APIClient
}

// NewAdminClient builds a client for cfg. When a client id is configured,
// requests carry a client-credentials bearer token.
func NewAdminClient(ctx context.Context, cfg Config) (*AdminClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.AdminURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse admin url: %w", err)
	}

	httpClient := &http.Client{}
	if strings.TrimSpace(cfg.ClientID) != "" {
		credentials := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       trimCSV(cfg.Scopes),
		}
		httpClient = credentials.Client(ctx)
	}
	httpClient.Timeout = cfg.Timeout
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = timeouts.AuthorizationServer
	}

	sdk := hydra.NewConfiguration()
	sdk.Servers = hydra.ServerConfigurations{{URL: baseURL.String()}}
	sdk.HTTPClient = httpClient
	sdk.UserAgent = "authgate"
	return &AdminClient{api: hydra.NewAPIClient(sdk)}, nil
}

// GetLoginRequest fetches the login request for challenge.
func (c *AdminClient) GetLoginRequest(ctx context.Context, challenge string) (LoginRequest, error) {
	if err := requireChallenge(challenge); err != nil {
		return LoginRequest{}, err
	}
	out, resp, err := c.api.OAuth2API.GetOAuth2LoginRequest(ctx).LoginChallenge(challenge).Execute()
	if err != nil {
		return LoginRequest{}, adminError(http.MethodGet, loginPath, resp, err)
	}
	client := out.GetClient()
	return LoginRequest{
		Challenge:  out.GetChallenge(),
		Skip:       out.GetSkip(),
		Subject:    out.GetSubject(),
		RequestURL: out.GetRequestUrl(),
		Client: OAuthClient{
			ClientID:   client.GetClientId(),
			ClientName: client.GetClientName(),
		},
	}, nil
}

// AcceptLogin accepts the login for body.Subject.
func (c *AdminClient) AcceptLogin(ctx context.Context, challenge string, body AcceptLogin) (Redirect, error) {
	if err := requireChallenge(challenge); err != nil {
		return Redirect{}, err
	}
	accept := hydra.NewAcceptOAuth2LoginRequest(body.Subject)
	accept.SetRemember(body.Remember)
	if body.RememberFor > 0 {
		accept.SetRememberFor(body.RememberFor)
	}
	out, resp, err := c.api.OAuth2API.AcceptOAuth2LoginRequest(ctx).
		LoginChallenge(challenge).
		AcceptOAuth2LoginRequest(*accept).
		Execute()
	if err != nil {
		return Redirect{}, adminError(http.MethodPut, loginAcceptPath, resp, err)
	}
	return Redirect{RedirectTo: out.GetRedirectTo()}, nil
}

// RejectLogin rejects the login with an OAuth error.
func (c *AdminClient) RejectLogin(ctx context.Context, challenge string, body RejectLogin) (Redirect, error) {
	if err := requireChallenge(challenge); err != nil {
		return Redirect{}, err
	}
	reject := hydra.NewRejectOAuth2Request()
	reject.SetError(body.Error)
	if body.ErrorDescription != "" {
		reject.SetErrorDescription(body.ErrorDescription)
	}
	if body.StatusCode != 0 {
		reject.SetStatusCode(int64(body.StatusCode))
	}
	out, resp, err := c.api.OAuth2API.RejectOAuth2LoginRequest(ctx).
		LoginChallenge(challenge).
		RejectOAuth2Request(*reject).
		Execute()
	if err != nil {
		return Redirect{}, adminError(http.MethodPut, loginRejectPath, resp, err)
	}
	return Redirect{RedirectTo: out.GetRedirectTo()}, nil
}

func requireChallenge(challenge string) error {
	if strings.TrimSpace(challenge) == "" {
		return errors.New("login challenge is required")
	}
	return nil
}

// adminError turns a non-2xx SDK failure into a StatusError. Transport and
// decode failures are wrapped as they are.
func adminError(method, path string, resp *http.Response, err error) error {
	if resp == nil || (resp.StatusCode >= 200 && resp.StatusCode <= 299) {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	statusErr := &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	var apiErr *hydra.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		body := apiErr.Body()
		if len(body) > 512 {
			body = body[:512]
		}
		statusErr.Body = strings.TrimSpace(string(body))
	}
	return statusErr
}

// Package petdata is the HTTP client for the pet search and pet food
// catalogue APIs, plus the engine tools that expose them to the model.
package petdata

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-go-golems/petfood-agent/pkg/logging"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultPetsURL  = "http://servic-searc-hynpsggsckqh-2085079762.us-east-2.elb.amazonaws.com/api/search"
	DefaultFoodsURL = "http://d3lkws79zlvrc4.cloudfront.net/petfood/api/foods"
	DefaultTimeout  = 10 * time.Second

	maxBodyBytes = 4 << 20
)

type Settings struct {
	PetsURL  string        `mapstructure:"pets_url"`
	FoodsURL string        `mapstructure:"foods_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

func DefaultSettings() Settings {
	return Settings{
		PetsURL:  DefaultPetsURL,
		FoodsURL: DefaultFoodsURL,
		Timeout:  DefaultTimeout,
		RetryMax: 2,
	}
}

// Client issues GET requests against the pet and food APIs with retries.
type Client struct {
	settings Settings
	http     *retryablehttp.Client
}

func NewClient(s Settings, logger zerolog.Logger) (*Client, error) {
	if s.PetsURL == "" || s.FoodsURL == "" {
		return nil, errors.New("petdata: pets_url and foods_url are required")
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.RetryMax < 0 {
		s.RetryMax = 0
	}
	hc := retryablehttp.NewClient()
	hc.RetryMax = s.RetryMax
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = time.Second
	hc.HTTPClient.Timeout = s.Timeout
	hc.Logger = logging.NewLeveled(logger.With().Str("component", "petdata").Logger())
	return &Client{settings: s, http: hc}, nil
}

// SearchPets queries the pets API with q and returns its JSON body.
func (c *Client) SearchPets(ctx context.Context, q string) (json.RawMessage, error) {
	u, err := url.Parse(c.settings.PetsURL)
	if err != nil {
		return nil, errors.Wrap(err, "petdata: parse pets url")
	}
	params := u.Query()
	params.Set("q", q)
	u.RawQuery = params.Encode()
	return c.getJSON(ctx, u.String())
}

// ListFoods returns the food catalogue JSON.
func (c *Client) ListFoods(ctx context.Context) (json.RawMessage, error) {
	return c.getJSON(ctx, c.settings.FoodsURL)
}

func (c *Client) getJSON(ctx context.Context, target string) (json.RawMessage, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "petdata: build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "petdata: GET %s", target)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "petdata: read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("petdata: GET %s: status %d", target, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, errors.Errorf("petdata: GET %s: response is not JSON", target)
	}
	return json.RawMessage(body), nil
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// APIError es la forma uniforme de los fallos del catálogo. StatusCode es 0
// cuando no hubo respuesta del servidor.
type APIError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return "catalog: " + e.Message
	}
	return fmt.Sprintf("catalog: status %d: %s", e.StatusCode, e.Message)
}

// IsNetwork indica que el servidor no respondió.
func (e *APIError) IsNetwork() bool {
	return e.StatusCode == 0
}

// Client habla con la API v3 de TMDb.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient construye un cliente apuntando a baseURL.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if apiKey == "" {
		logger.Warn("tmdb api key not set")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  httpClient,
		logger:  logger,
	}
}

func (c *Client) search(ctx context.Context, query string, page int) (searchResponse, error) {
	var out searchResponse
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(normalizePage(page)))
	params.Set("include_adult", "false")
	err := c.get(ctx, "/search/movie", params, &out)
	return out, err
}

func (c *Client) details(ctx context.Context, movieID int64) (movieDetailsResponse, error) {
	var out movieDetailsResponse
	err := c.get(ctx, "/movie/"+strconv.FormatInt(movieID, 10), nil, &out)
	return out, err
}

func (c *Client) popular(ctx context.Context, page int) (searchResponse, error) {
	var out searchResponse
	params := url.Values{}
	params.Set("page", strconv.Itoa(normalizePage(page)))
	err := c.get(ctx, "/movie/popular", params, &out)
	return out, err
}

func (c *Client) trending(ctx context.Context, window string) (searchResponse, error) {
	var out searchResponse
	err := c.get(ctx, "/trending/movie/"+window, nil, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &APIError{Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("tmdb request failed", zap.String("path", path), zap.Error(err))
		return &APIError{Message: "No response from server. Check your internet connection."}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Message: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			StatusMessage string `json:"status_message"`
		}
		msg := "An error occurred"
		if json.Unmarshal(body, &apiErr) == nil && apiErr.StatusMessage != "" {
			msg = apiErr.StatusMessage
		}
		c.logger.Warn("tmdb error status", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return &APIError{Message: msg, StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &APIError{Message: fmt.Sprintf("unmarshal response: %v", err), StatusCode: resp.StatusCode}
	}
	return nil
}

func normalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// AsAPIError extrae el *APIError de err si lo hay.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

type movieResponse struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	PosterPath       *string `json:"poster_path"`
	BackdropPath     *string `json:"backdrop_path"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"original_language"`
	GenreIDs         []int   `json:"genre_ids"`
}

type searchResponse struct {
	Page         int             `json:"page"`
	Results      []movieResponse `json:"results"`
	TotalPages   int             `json:"total_pages"`
	TotalResults int             `json:"total_results"`
}

type genreResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type productionCompanyResponse struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	LogoPath      *string `json:"logo_path"`
	OriginCountry string  `json:"origin_country"`
}

type movieDetailsResponse struct {
	movieResponse
	Runtime             *int                        `json:"runtime"`
	Genres              []genreResponse             `json:"genres"`
	ProductionCompanies []productionCompanyResponse `json:"production_companies"`
	Budget              int64                       `json:"budget"`
	Revenue             int64                       `json:"revenue"`
	Status              string                      `json:"status"`
	Tagline             *string                     `json:"tagline"`
}

package apisvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client talks to the curriculum REST API, with at most concurrency calls in flight for multi-call reads.
type Client struct {
	baseURL     string
	token       string
	http        *http.Client
	concurrency int
	logger      core.Logger
}

var _ curriculum.Backend = (*Client)(nil)

var idsPerRequest = 100 // mockable

func NewClient(conf core.APIConfig, concurrency int, logger core.Logger) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Client{
		baseURL:     strings.TrimRight(conf.BaseURL, "/"),
		token:       conf.Token,
		http:        &http.Client{Timeout: conf.Timeout},
		concurrency: concurrency,
		logger:      logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	c.logger.Debug(fmt.Sprintf("api: %s %s -> %d", method, path, resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Wrapf(decodeError(resp), "%s %s", method, path)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s %s", method, path)
	}
	return nil
}

// decodeError maps an error response: 404 is ErrNotFound, a 400 field map is a validation error.
func decodeError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound {
		return curriculum.ErrNotFound
	}
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	if msg, ok := payload["error"].(string); ok && len(payload) == 1 {
		apiErr.Message = msg
	} else {
		apiErr.Fields = make(map[string]string, len(payload))
		for k, v := range payload {
			apiErr.Fields[k] = fmt.Sprint(v)
		}
	}

	if resp.StatusCode == http.StatusBadRequest {
		flds := make([]core.FieldError, 0, len(apiErr.Fields))
		for k, v := range apiErr.Fields {
			flds = append(flds, core.FieldError{Field: k, Error: v})
		}
		return core.NewValidationError(apiErr, flds...)
	}
	return apiErr
}

func curriculumPath(id string) string {
	return "/curriculum/" + url.PathEscape(id)
}

func entityPath(level curriculum.Level, id string) string {
	return "/" + level.Resource() + "/" + url.PathEscape(id)
}

func (c *Client) CreateCurriculum(ctx context.Context, nc curriculum.NewCurriculum) (curriculum.Curriculum, error) {
	var cur curriculum.Curriculum
	err := c.do(ctx, http.MethodPost, "/curriculum", nc, &cur)
	return cur, err
}

func (c *Client) GetCurriculum(ctx context.Context, id string) (curriculum.Curriculum, error) {
	var cur curriculum.Curriculum
	err := c.do(ctx, http.MethodGet, curriculumPath(id), nil, &cur)
	return cur, err
}

func (c *Client) GetCurricula(ctx context.Context, ids ...string) ([]curriculum.Curriculum, error) {
	found := make([]*curriculum.Curriculum, len(ids))
	err := c.fanOut(ctx, ids, func(ctx context.Context, i int, id string) error {
		cur, err := c.GetCurriculum(ctx, id)
		if err != nil {
			return err
		}
		found[i] = &cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	curricula := make([]curriculum.Curriculum, 0, len(ids))
	for _, cur := range found {
		if cur != nil {
			curricula = append(curricula, *cur)
		}
	}
	return curricula, nil
}

func (c *Client) QueryCurricula(ctx context.Context, ordering ...core.DBOrdering) ([]curriculum.Curriculum, error) {
	path := "/curriculum"
	if len(ordering) > 0 {
		fields := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			if ord.Ascending {
				fields = append(fields, ord.Field)
			} else {
				fields = append(fields, "-"+ord.Field)
			}
		}
		path += "?" + url.Values{"ordering": {strings.Join(fields, ",")}}.Encode()
	}
	var curricula []curriculum.Curriculum
	err := c.do(ctx, http.MethodGet, path, nil, &curricula)
	return curricula, err
}

func (c *Client) GetHierarchy(ctx context.Context, curriculumID string) (curriculum.Hierarchy, error) {
	var h curriculum.Hierarchy
	err := c.do(ctx, http.MethodGet, curriculumPath(curriculumID)+"/full", nil, &h)
	return h, err
}

func (c *Client) UpdateCurriculum(ctx context.Context, id string, uc curriculum.UpdateCurriculum) (curriculum.Curriculum, error) {
	var cur curriculum.Curriculum
	err := c.do(ctx, http.MethodPut, curriculumPath(id), uc, &cur)
	return cur, err
}

func (c *Client) GetEntity(ctx context.Context, level curriculum.Level, id string) (curriculum.Entity, error) {
	e := curriculum.Entity{Level: level}
	if err := c.do(ctx, http.MethodGet, entityPath(level, id), nil, &e); err != nil {
		return curriculum.Entity{}, err
	}
	return e, nil
}

// GetEntities reads the records with `?id=a,b,...`, idsPerRequest ids per call. Unknown ids are skipped.
func (c *Client) GetEntities(ctx context.Context, level curriculum.Level, ids ...string) ([]curriculum.Entity, error) {
	ids = core.UniqueStrings(ids)
	var batches [][]string
	for len(ids) > idsPerRequest {
		batches = append(batches, ids[:idsPerRequest])
		ids = ids[idsPerRequest:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}

	pages := make([][]json.RawMessage, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			path := "/" + level.Resource() + "?" + url.Values{"id": {strings.Join(batch, ",")}}.Encode()
			return c.do(gctx, http.MethodGet, path, nil, &pages[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "fetching %s", level.Resource())
	}

	byID := make(map[string]curriculum.Entity)
	for _, page := range pages {
		for _, raw := range page {
			e := curriculum.Entity{Level: level}
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, errors.Wrapf(err, "decoding %s", level.Resource())
			}
			byID[e.ID] = e
		}
	}
	entities := make([]curriculum.Entity, 0, len(byID))
	for _, batch := range batches {
		for _, id := range batch {
			if e, ok := byID[id]; ok {
				entities = append(entities, e)
			}
		}
	}
	return entities, nil
}

// fanOut calls fetch for every id, bounded by the client concurrency. Unknown ids are skipped.
func (c *Client) fanOut(ctx context.Context, ids []string, fetch func(ctx context.Context, i int, id string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := fetch(gctx, i, id); err != nil && errors.Cause(err) != curriculum.ErrNotFound {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Endpoints returns the flat per-level CRUD endpoints of the API.
func (c *Client) Endpoints() curriculum.Endpoints {
	return curriculum.Endpoints{
		Subjects: levelEndpoints{c, curriculum.LevelSubject},
		Courses:  levelEndpoints{c, curriculum.LevelCourse},
		Units:    levelEndpoints{c, curriculum.LevelUnit},
		Topics:   levelEndpoints{c, curriculum.LevelTopic},
	}
}

type levelEndpoints struct {
	client *Client
	level  curriculum.Level
}

func (ep levelEndpoints) Create(ctx context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	e.Level = ep.level
	created := curriculum.Entity{Level: ep.level}
	if err := ep.client.do(ctx, http.MethodPost, "/"+ep.level.Resource(), e, &created); err != nil {
		return curriculum.Entity{}, err
	}
	return created, nil
}

func (ep levelEndpoints) Update(ctx context.Context, e curriculum.Entity) (curriculum.Entity, error) {
	e.Level = ep.level
	updated := curriculum.Entity{Level: ep.level}
	if err := ep.client.do(ctx, http.MethodPut, entityPath(ep.level, e.ID), e, &updated); err != nil {
		return curriculum.Entity{}, err
	}
	return updated, nil
}

func (ep levelEndpoints) Delete(ctx context.Context, id string) error {
	return ep.client.do(ctx, http.MethodDelete, entityPath(ep.level, id), nil, nil)
}

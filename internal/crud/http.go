package crud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HTTPResource talks to a REST endpoint prefix:
//
//	GET    prefix?_limit=&_offset=&<filters>   rows, total in X-Total-Count
//	POST   prefix
//	PUT    prefix/:id
//	DELETE prefix/:id
//	POST   prefix/_bulk_delete {"ids": [...]}
type HTTPResource struct {
	Prefix string
	Client *http.Client
	// Header is added to every request (auth, capabilities).
	Header http.Header
}

func NewHTTPResource(prefix string, client *http.Client) *HTTPResource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPResource{Prefix: strings.TrimRight(prefix, "/"), Client: client}
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// EncodeQuery renders list parameters: scalars as field=value, slices as
// field__in=a,b, pagination as _limit/_offset.
func EncodeQuery(q Query) url.Values {
	out := url.Values{}
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := q.Params[k].(type) {
		case nil:
		case string:
			if strings.TrimSpace(v) != "" {
				out.Set(k, v)
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, it := range v {
				parts = append(parts, fmt.Sprint(it))
			}
			if len(parts) > 0 {
				out.Set(k+"__in", strings.Join(parts, ","))
			}
		case []string:
			if len(v) > 0 {
				out.Set(k+"__in", strings.Join(v, ","))
			}
		case float64:
			out.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			out.Set(k, fmt.Sprint(v))
		}
	}
	if q.PageSize > 0 {
		page := max(q.Page, 1)
		out.Set("_limit", strconv.Itoa(q.PageSize))
		out.Set("_offset", strconv.Itoa((page-1)*q.PageSize))
	}
	return out
}

func (h *HTTPResource) List(ctx context.Context, q Query) (ListResult, error) {
	u := h.Prefix
	if enc := EncodeQuery(q).Encode(); enc != "" {
		u += "?" + enc
	}
	var rows []Record
	res, err := h.do(ctx, http.MethodGet, u, nil, &rows)
	if err != nil {
		return ListResult{}, err
	}
	total := len(rows)
	if tc := res.Header.Get("X-Total-Count"); tc != "" {
		n, err := strconv.Atoi(tc)
		if err != nil {
			return ListResult{}, fmt.Errorf("bad X-Total-Count %q", tc)
		}
		total = n
	}
	return ListResult{Rows: rows, Total: total}, nil
}

func (h *HTTPResource) Create(ctx context.Context, payload Record) error {
	_, err := h.do(ctx, http.MethodPost, h.Prefix, payload, nil)
	return err
}

func (h *HTTPResource) Update(ctx context.Context, id string, payload Record) error {
	_, err := h.do(ctx, http.MethodPut, h.Prefix+"/"+url.PathEscape(id), payload, nil)
	return err
}

func (h *HTTPResource) Delete(ctx context.Context, id string) error {
	_, err := h.do(ctx, http.MethodDelete, h.Prefix+"/"+url.PathEscape(id), nil, nil)
	return err
}

func (h *HTTPResource) BatchDelete(ctx context.Context, ids []string) error {
	_, err := h.do(ctx, http.MethodPost, h.Prefix+"/_bulk_delete", map[string]any{"ids": ids}, nil)
	return err
}

func (h *HTTPResource) do(ctx context.Context, method, u string, body any, out any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range h.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := h.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode/100 != 2 {
		return nil, &StatusError{Method: method, URL: u, Status: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return nil, fmt.Errorf("%s %s: decode: %w", method, u, err)
		}
	}
	return res, nil
}

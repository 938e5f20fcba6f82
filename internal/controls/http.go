package controls

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"adminkit/internal/schema"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// HTTPFetcher returns a fetcher that GETs tmpl with {key} placeholders replaced
// by the query-escaped dependency values. The response is a JSON array of
// {label, value} objects, or an object with such an array under "items".
func HTTPFetcher(client *http.Client, tmpl string) schema.OptionFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return func(ctx context.Context, deps schema.Values) (OptionList, error) {
		u := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
			k := m[1 : len(m)-1]
			v, ok := deps[k]
			if !ok {
				return ""
			}
			return url.QueryEscape(fmt.Sprint(v))
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		res, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if res.StatusCode/100 != 2 {
			return nil, fmt.Errorf("GET %s: %s", u, res.Status)
		}
		return decodeOptions(body)
	}
}

func decodeOptions(body []byte) (OptionList, error) {
	var list OptionList
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Items OptionList `json:"items"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return wrapped.Items, nil
}

package noise

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const indicesPath = "/noise-indices"

// Remote asks a noise detection Server for the indices.
type Remote struct {
	base string
	rest *resty.Client
}

func NewRemote(base string, timeout time.Duration) *Remote {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	r.SetHeader("Content-Type", "application/json")
	return &Remote{base: strings.TrimRight(base, "/"), rest: r}
}

func (c *Remote) FindNoiseIndices(ctx context.Context, req Request) ([]int, error) {
	result := &Response{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(result).
		SetError(result).
		Post(c.base + indicesPath)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		if result.Error != "" {
			return nil, fmt.Errorf("noise service: status %d: %s", resp.StatusCode(), result.Error)
		}
		return nil, fmt.Errorf("noise service: status %d, body: %s", resp.StatusCode(), resp.String())
	}
	if result.Error != "" {
		return nil, fmt.Errorf("noise service: %s", result.Error)
	}

	return result.Indices, nil
}

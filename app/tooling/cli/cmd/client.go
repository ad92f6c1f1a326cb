package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// errorResponse is the error document returned by the node.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// client talks to the public api of a node.
type client struct {
	r *resty.Client
}

func newClient() client {
	r := resty.New().
		SetBaseURL(strings.TrimSuffix(viper.GetString("url"), "/")+"/v1").
		SetTimeout(10*time.Minute).
		SetHeader("Content-Type", "application/json").
		SetError(&errorResponse{})

	return client{r: r}
}

func (c client) get(path string, out any) error {
	return c.do("GET", path, nil, out)
}

func (c client) post(path string, in any, out any) error {
	return c.do("POST", path, in, out)
}

func (c client) do(method string, path string, in any, out any) error {
	req := c.r.R()
	if in != nil {
		req.SetBody(in)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.WithMessagef(err, "%s %s", method, path)
	}

	if resp.IsError() {
		if er, ok := resp.Error().(*errorResponse); ok && er.Error != "" {
			if len(er.Fields) > 0 {
				return fmt.Errorf("%s: %s: %v", resp.Status(), er.Error, er.Fields)
			}
			return fmt.Errorf("%s: %s", resp.Status(), er.Error)
		}
		return fmt.Errorf("%s", resp.Status())
	}

	return nil
}

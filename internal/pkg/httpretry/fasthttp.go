package httpretry

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Response is the part of a fasthttp response the clients read.
type Response struct {
	StatusCode int
	Body       []byte
}

type exchange struct {
	resp Response
	err  error
}

// Get performs one GET request built by prepare. It is bounded by timeout or
// ctx's deadline, whichever is earlier, and returns ctx.Err() as soon as ctx
// is cancelled. An abandoned request finishes in the background and releases
// its buffers when its deadline passes.
func Get(ctx context.Context, client *fasthttp.Client, timeout time.Duration, prepare func(*fasthttp.Request)) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	req := fasthttp.AcquireRequest()
	prepare(req)
	req.Header.SetMethod(fasthttp.MethodGet)
	path := string(req.URI().Path())

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan exchange, 1)
	go func() {
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		var ex exchange
		if ex.err = client.DoDeadline(req, resp, deadline); ex.err == nil {
			ex.resp = Response{
				StatusCode: resp.StatusCode(),
				Body:       append([]byte(nil), resp.Body()...),
			}
		}
		done <- ex
	}()

	select {
	case ex := <-done:
		if ex.err != nil {
			return Response{}, fmt.Errorf("get %s: %w", path, ex.err)
		}
		return ex.resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

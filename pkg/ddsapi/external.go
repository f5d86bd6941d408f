package ddsapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/duke-gcb/ddsclient/pkg/errors"
)

// SendExternal delivers one chunk's bytes to the backing store as directed
// by the descriptor. Connection failures retry per the send-chunk settings;
// a 403 means the descriptor expired, so refresh is called for a fresh one
// and the send is repeated.
func (c *Client) SendExternal(ctx context.Context, descriptor *ExternalDescriptor,
	chunk []byte, refresh func(ctx context.Context) (*ExternalDescriptor, error)) error {

	retrier := Retrier{Call: c.settings.SendChunkCall(), Clock: c.clock}
	return retrier.DoWithRefresh(ctx, func() error {
		req, err := externalRequest(ctx, descriptor, bytes.NewReader(chunk))
		if err != nil {
			return err
		}
		req.ContentLength = int64(len(chunk))

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newResponseError(resp)
		}
		return nil
	}, func() error {
		fresh, err := refresh(ctx)
		if err != nil {
			return err
		}
		*descriptor = *fresh
		return nil
	})
}

// FetchExternal downloads the byte range [start, start+length) of a file's
// content and writes it at the same offset of w. A failed attempt rewrites
// the range from the beginning, so w must tolerate overlapping writes.
func (c *Client) FetchExternal(ctx context.Context, descriptor *ExternalDescriptor,
	start, length int64, w io.WriterAt,
	refresh func(ctx context.Context) (*ExternalDescriptor, error)) error {

	retrier := Retrier{Call: c.settings.FetchChunkCall(), Clock: c.clock}
	return retrier.DoWithRefresh(ctx, func() error {
		req, err := externalRequest(ctx, descriptor, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, start+length-1))

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return newResponseError(resp)
		}

		_, err = io.Copy(&offsetWriter{w: w, offset: start}, resp.Body)
		return err
	}, func() error {
		fresh, err := refresh(ctx)
		if err != nil {
			return err
		}
		*descriptor = *fresh
		return nil
	})
}

func externalRequest(ctx context.Context, descriptor *ExternalDescriptor,
	body io.Reader) (*http.Request, error) {

	verb := descriptor.HTTPVerb
	if verb == "" {
		return nil, errors.New("external descriptor is missing an http verb")
	}
	req, err := http.NewRequestWithContext(ctx, verb, descriptor.Host+descriptor.URL, body)
	if err != nil {
		return nil, errors.WithContext(err, "build external request")
	}
	for key, value := range descriptor.HTTPHeaders {
		req.Header.Set(key, value)
	}
	return req, nil
}

// offsetWriter adapts an io.WriterAt into a sequential writer starting at a
// fixed offset.
type offsetWriter struct {
	w      io.WriterAt
	offset int64
}

func (ow *offsetWriter) Write(p []byte) (int, error) {
	n, err := ow.w.WriteAt(p, ow.offset)
	ow.offset += int64(n)
	return n, err
}

package client

import (
	"fmt"
	"net/http"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
)

type tlsWrapper struct {
	innerClient tls_client.HttpClient
}

// Do converts the request to fhttp. The request context is carried over so an
// attempt timeout or a canceled submission aborts the TLS round trip, and the
// original request is set on the response so callers can resolve relative
// Location headers against it.
func (w *tlsWrapper) Do(req *http.Request) (*http.Response, error) {
	fReq := &fhttp.Request{
		Method:        req.Method,
		URL:           req.URL,
		Proto:         req.Proto,
		ProtoMajor:    req.ProtoMajor,
		ProtoMinor:    req.ProtoMinor,
		Header:        make(fhttp.Header),
		Body:          req.Body,
		ContentLength: req.ContentLength,
		Host:          req.Host,
	}
	fReq = fReq.WithContext(req.Context())

	for k, v := range req.Header {
		fReq.Header[k] = v
	}

	resp, err := w.innerClient.Do(fReq)
	if err != nil {
		return nil, err
	}

	netResp := &http.Response{
		Status:           resp.Status,
		StatusCode:       resp.StatusCode,
		Proto:            resp.Proto,
		ProtoMajor:       resp.ProtoMajor,
		ProtoMinor:       resp.ProtoMinor,
		ContentLength:    resp.ContentLength,
		Body:             resp.Body,
		Header:           make(http.Header),
		Uncompressed:     resp.Uncompressed,
		TransferEncoding: resp.TransferEncoding,
		Request:          req,
	}

	for k, v := range resp.Header {
		netResp.Header[k] = v
	}

	return netResp, nil
}

// mediaTimeoutSeconds bounds a whole media stream. Downloader API attempts carry
// their own much shorter deadline in the request context.
const mediaTimeoutSeconds = 600

// NewHttpClient builds a browser-fingerprinted client; the downloader APIs and
// media CDNs refuse plain Go TLS handshakes more often than browser ones.
// extra options are appended, e.g. WithoutRedirects for the download trigger.
func NewHttpClient(extra ...tls_client.HttpClientOption) (endpoints.HTTPClient, error) {
	jar := tls_client.NewCookieJar()

	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(mediaTimeoutSeconds),
		tls_client.WithClientProfile(profiles.DefaultClientProfile),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithCookieJar(jar),
	}
	options = append(options, extra...)

	c, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tls client: %w", err)
	}

	return &tlsWrapper{innerClient: c}, nil
}

// WithoutRedirects hands 3xx responses back to the caller instead of following them.
func WithoutRedirects() tls_client.HttpClientOption {
	return tls_client.WithNotFollowRedirects()
}

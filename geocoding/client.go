// Copyright 2025 The Mapies Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"io"
	"net/http"
	"time"

	"github.com/massimahiou/mapies-sub001/utils/httputils"
)

// DefaultUserAgent identifies the pipeline to providers. Nominatim rejects
// requests without one.
const DefaultUserAgent = "mapies/unknown"

// ClientOptions configures the HTTP client shared by providers.
type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration
	// TraceWriter receives a dump of every request and response when set.
	TraceWriter io.Writer
	TraceBody   bool
}

// NewHTTPClient builds the client used to talk to geocoding providers.
func NewHTTPClient(options ClientOptions) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	loggingTransport := &httputils.LoggingRoundTripper{
		Writer:    options.TraceWriter,
		DumpBody:  options.TraceBody,
		Transport: transport,
	}

	userAgent := DefaultUserAgent
	if options.UserAgent != "" {
		userAgent = options.UserAgent
	}

	headerTransport := &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		},
		Transport: loggingTransport,
	}

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &http.Client{
		Timeout: timeout,
		// Providers answer directly; a redirect usually means a captive
		// portal or a misconfigured base URL.
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: headerTransport,
	}
}

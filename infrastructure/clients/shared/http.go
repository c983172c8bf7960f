package shared

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"content-publisher/domain/model"

	"github.com/google/go-querystring/query"
)

// GraphError is the error envelope of the Meta Graph API.
type GraphError struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// graphRateLimitCodes are the Graph API codes for app, user and page throttling.
var graphRateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

// ClassifyStatus maps an HTTP status to an error kind.
func ClassifyStatus(status int) model.ErrorKind {
	switch {
	case status >= 500:
		return model.KindTransient
	case status == http.StatusTooManyRequests:
		return model.KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return model.KindAuth
	default:
		return model.KindProtocol
	}
}

// ErrorFromResponse builds a classified error from a non-2xx body. Graph
// error envelopes are decoded and their code passed through untouched.
func ErrorFromResponse(status int, body []byte) *model.PlatformError {
	kind := ClassifyStatus(status)
	msg := strings.TrimSpace(string(body))

	var ge GraphError
	if err := json.Unmarshal(body, &ge); err == nil && (ge.Error.Message != "" || ge.Error.Code != 0) {
		code := strconv.Itoa(ge.Error.Code)
		if graphRateLimitCodes[ge.Error.Code] {
			kind = model.KindRateLimited
		} else if ge.Error.Code == 190 {
			// invalid or expired OAuth token
			kind = model.KindAuth
		}
		return model.NewPlatformError(kind, code, "%s", ge.Error.Message)
	}
	msg = Truncate(msg, 300)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return model.NewPlatformError(kind, strconv.Itoa(status), "%s", msg)
}

// TransportError wraps a failed round trip as transient.
func TransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &model.PlatformError{Kind: model.KindTransient, Message: err.Error(), Err: err}
}

// Request describes one JSON API call.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Form    interface{}
	JSON    interface{}
	Headers map[string]string
}

// Do sends req and decodes a 2xx JSON body into out. Non-2xx responses and
// transport failures come back as *model.PlatformError.
func Do(ctx context.Context, client *http.Client, req Request, out interface{}) (http.Header, error) {
	u := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		values, ok := req.Form.(url.Values)
		if !ok {
			v, err := query.Values(req.Form)
			if err != nil {
				return nil, fmt.Errorf("encode form: %w", err)
			}
			values = v
		}
		body = strings.NewReader(values.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, TransportError(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.Header, TransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, ErrorFromResponse(resp.StatusCode, raw)
	}
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.Header, model.NewPlatformError(model.KindProtocol, "", "decode response: %v", err)
		}
	}
	return resp.Header, nil
}

// Bearer returns an Authorization header map for token.
func Bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// VerifyResult turns a probe outcome into VerifyAuth's answer: auth
// rejections mean false without an error, anything else is reported.
func VerifyResult(ok bool, err error) (bool, error) {
	if err == nil {
		return ok, nil
	}
	if errors.Is(err, model.ErrAuth) {
		return false, nil
	}
	return false, err
}

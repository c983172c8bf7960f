package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"content-publisher/domain/model"
	"content-publisher/infrastructure/clients/shared"
	"content-publisher/infrastructure/logger"
)

const maxUploadBackoff = 30 * time.Second

// source describes the media being copied to YouTube.
type source struct {
	url         string
	size        int64
	contentType string
}

// uploader runs one resumable upload session.
type uploader struct {
	client  *http.Client
	token   string
	retries int
	backoff time.Duration
	resumes int
	sleep func(ctx context.Context, d time.Duration) error
}

type uploadedVideo struct {
	ID string `json:"id"`
}

// probe learns size and type of the source without downloading it.
func (u *uploader) probe(ctx context.Context, mediaURL string) (*source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, mediaURL, nil)
	if err != nil {
		return nil, model.NewPlatformError(model.KindValidation, "", "bad media url: %v", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, shared.TransportError(err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		pe := shared.ErrorFromResponse(resp.StatusCode, nil)
		pe.Message = fmt.Sprintf("media source answered %d", resp.StatusCode)
		if pe.Kind == model.KindAuth {
			// the source host refused us; the channel token is fine
			pe.Kind = model.KindProtocol
		}
		return nil, pe
	}
	if resp.ContentLength <= 0 {
		return nil, model.NewPlatformError(model.KindProtocol, "", "media source did not report a size")
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "video/") {
		ct = "video/*"
	}
	return &source{url: mediaURL, size: resp.ContentLength, contentType: ct}, nil
}

// open declares the upload and returns the session URI.
func (u *uploader) open(ctx context.Context, endpoint string, src *source, metadata interface{}) (string, error) {
	body, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?uploadType=resumable&part=snippet,status", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(src.size, 10))
	req.Header.Set("X-Upload-Content-Type", src.contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", shared.TransportError(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", ErrorFromUpload(resp.StatusCode, raw)
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return "", model.NewPlatformError(model.KindProtocol, "", "upload session has no location")
	}
	return session, nil
}

// send streams the source into session. A 308 means the upload is incomplete
// and resumes right away from the acknowledged offset; 5xx and transport
// failures back off and ask the session where to resume; 4xx stops.
func (u *uploader) send(ctx context.Context, session string, src *source) (string, int, error) {
	log := logger.GetLogger().WithField("platform", model.PlatformYouTube).WithField("size", src.size)
	var offset int64
	attempts, failures, resumes := 0, 0, 0

	for {
		attempts++
		status, header, body, err := u.put(ctx, session, src, offset)
		if err == nil && (status == http.StatusOK || status == http.StatusCreated) {
			id, derr := videoID(body)
			return id, attempts, derr
		}

		switch {
		case err == nil && status == http.StatusPermanentRedirect:
			resumes++
			if resumes > u.resumes {
				return "", attempts, model.NewPlatformError(model.KindTransient, "resume_limit", "upload still incomplete after %d resumes", resumes-1)
			}
			offset = nextOffset(header)
			log.WithField("offset", offset).Debug("Upload incomplete, resuming")
			continue

		case err == nil && status >= 400 && status < 500:
			return "", attempts, ErrorFromUpload(status, body)
		}

		if err == nil {
			err = ErrorFromUpload(status, body)
		}
		failures++
		if failures > u.retries {
			return "", attempts, err
		}
		wait := u.backoff << (failures - 1)
		if wait > maxUploadBackoff || wait <= 0 {
			wait = maxUploadBackoff
		}
		log.WithField("error", err).WithField("wait", wait).Warn("Upload chunk failed, retrying")
		if serr := u.sleep(ctx, wait); serr != nil {
			return "", attempts, serr
		}

		st, h, b, qerr := u.query(ctx, session, src.size)
		switch {
		case qerr != nil:
			// keep the offset we had
		case st == http.StatusOK || st == http.StatusCreated:
			id, derr := videoID(b)
			return id, attempts, derr
		case st == http.StatusPermanentRedirect:
			offset = nextOffset(h)
		case st >= 400 && st < 500:
			return "", attempts, ErrorFromUpload(st, b)
		}
	}
}

// put sends bytes [offset, size) of the source, reopening it at offset.
func (u *uploader) put(ctx context.Context, session string, src *source, offset int64) (int, http.Header, []byte, error) {
	body, err := u.openSource(ctx, src, offset)
	if err != nil {
		return 0, nil, nil, err
	}
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, body)
	if err != nil {
		return 0, nil, nil, err
	}
	req.ContentLength = src.size - offset
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Type", src.contentType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, src.size-1, src.size))
	return u.do(req)
}

// query asks the session how many bytes it holds.
func (u *uploader) query(ctx context.Context, session string, size int64) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, http.NoBody)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+u.token)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
	return u.do(req)
}

func (u *uploader) do(req *http.Request) (int, http.Header, []byte, error) {
	resp, err := u.client.Do(req)
	if err != nil {
		return 0, nil, nil, shared.TransportError(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, shared.TransportError(err)
	}
	return resp.StatusCode, resp.Header, raw, nil
}

// openSource streams the media from offset. Hosts that ignore Range get the
// leading bytes discarded.
func (u *uploader) openSource(ctx context.Context, src *source, offset int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.url, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, shared.TransportError(err)
	}
	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK:
		if offset > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
				resp.Body.Close()
				return nil, shared.TransportError(err)
			}
		}
	default:
		resp.Body.Close()
		pe := shared.ErrorFromResponse(resp.StatusCode, nil)
		pe.Message = fmt.Sprintf("media source answered %d", resp.StatusCode)
		return nil, pe
	}
	return resp.Body, nil
}

// nextOffset reads "Range: bytes=0-N" and returns N+1, or 0 when absent.
func nextOffset(h http.Header) int64 {
	r := h.Get("Range")
	if r == "" {
		return 0
	}
	if i := strings.LastIndex(r, "-"); i >= 0 {
		if n, err := strconv.ParseInt(strings.TrimSpace(r[i+1:]), 10, 64); err == nil {
			return n + 1
		}
	}
	return 0
}

func videoID(body []byte) (string, error) {
	var v uploadedVideo
	if err := json.Unmarshal(body, &v); err != nil || v.ID == "" {
		return "", model.NewPlatformError(model.KindProtocol, "", "upload finished without a video id")
	}
	return v.ID, nil
}

// ErrorFromUpload decodes the Google JSON error envelope of an upload response.
func ErrorFromUpload(status int, body []byte) *model.PlatformError {
	pe := shared.ErrorFromResponse(status, nil)
	var env struct {
		Error struct {
			Message string `json:"message"`
			Errors  []struct {
				Reason string `json:"reason"`
			} `json:"errors"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		pe.Message = env.Error.Message
		for _, e := range env.Error.Errors {
			if e.Reason == "" {
				continue
			}
			pe.Code = e.Reason
			if quotaReasons[e.Reason] {
				pe.Kind = model.KindRateLimited
			}
		}
	} else if s := strings.TrimSpace(string(body)); s != "" {
		pe.Message = shared.Truncate(s, 300)
	}
	return pe
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
